// Package poller implements the scheduled-task abstraction behind live views.
//
// The Scheduler:
//   - Runs each registered task immediately, then on its interval
//   - Groups tasks in scopes owned by a context (one per UI view or subscriber)
//   - Tears a scope down, stopping and waiting for its tasks, when that context ends
//   - Lets callers trigger a task early after an invalidation
package poller
