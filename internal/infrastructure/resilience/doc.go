/*
Package resilience provides a circuit breaker for calls to remote package hosts.

# Overview

Installing from a URL depends on a host the daemon does not control. A host
that keeps failing trips its breaker, and further installs from it fail fast
until the open timeout elapses and a trial download succeeds.

# Usage

	group := resilience.NewGroup(resilience.Settings{
		Timeout: 30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state change", zap.String("host", name), zap.Stringer("to", to))
		},
	})

	err := group.Get(u.Host).Do(func() error {
		return download(u)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                         Open
*/
package resilience
