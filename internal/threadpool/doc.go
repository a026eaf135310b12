// Package threadpool owns the shared worker pools of the runtime.
//
// A Registry hands out one pool per PoolID, created lazily on first use:
//
//   - Bindings: general task execution
//   - Events: asynchronous event delivery
//   - Background: scheduled and periodic work
//
// Plain pools run submitted tasks from a FIFO queue on a bounded number of
// worker goroutines that grows from MinWorkers to MaxWorkers while every
// worker is busy and shrinks back after KeepAlive of idleness. Tasks
// submitted from one goroutine are started in submission order relative to
// each other, but with more than one worker their executions may overlap.
//
// The scheduled pool runs one-shot and fixed-period jobs grouped under a
// caller-chosen key so that all jobs of a key can be cancelled at once.
// At most Size jobs execute at the same time.
//
// Every task receives a context that is cancelled when its job is cancelled
// or when the registry shuts down. Cancellation is best effort: a task that
// ignores its context runs to completion.
//
// After Shutdown every operation returns ErrRegistryClosed.
package threadpool
