/*
Package supervisor launches app entry points as child processes and keeps
the set of instances it started.

Children run in their own process group with output appended to a per-app
log file (or inherited), and are never waited on by a request: liveness is
polled with a non-blocking wait. Stopping sends a signal and returns.

Tracking is in memory only. Instances started by a previous daemon keep
running after a restart but are no longer tracked.

Entries leave the tracked set when:
  - Stop is called on an instance that has already exited
  - List observes that a stopped instance has exited
  - the owning app is stopped as a whole (StopApp)
  - Prune runs, manually or from the janitor schedule

Instances that exit without being stopped stay visible with alive=false and
their exit code until one of the above happens.
*/
package supervisor
