/*
Package monitoring provides Prometheus metrics for the daemon.

# Overview

Metrics are registered on a caller supplied registry so several daemons
(or tests) can live in one process. The server exposes that registry on
/metrics.

# Metrics

- HTTP request count and latency per route
- Install, run and stop outcomes
- Registered apps, tracked and live instances
- Event stream subscribers
- Uptime

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	timer := monitoring.NewTimer(metrics, "install")
	// ... perform operation ...
	timer.Stop("ok")
*/
package monitoring
