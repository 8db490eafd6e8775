/*
Package worker provides the dispatch loop run by each engine worker goroutine.

# Overview

A Worker repeatedly:
  - claims the first Created task from the shared queue, blocking while none exists
  - resolves the task type to a handler through the frozen registry
  - runs the handler against the shared provider, without holding the queue lock
  - records the outcome and raises the readiness notifier in one critical section

Claiming a shutdown sentinel ends the loop. Sentinels are queued behind
earlier work, so a stopping engine still runs everything submitted before
the stop.

# Error Handling

Handler errors are wrapped in *types.TaskError and attached to the task.
Handler panics are recovered and attached as *types.PanicError together with
the goroutine stack. Neither stops the worker.

Bookkeeping failures (an invalid state transition, an unknown task type that
bypassed submission checks, a notifier write error) are passed to the fatal
handler. The default fatal handler logs and panics.

# Usage Examples

Workers are normally owned by an engine. Running one directly:

	n, _ := notifier.New()
	q := queue.New(n)
	w := worker.New(0, q, registry, provider,
		worker.WithLogger(logger),
		worker.WithCompletionCallback(func(typ task.Type, st task.State, d time.Duration) {
			log.Printf("%s %s in %v", typ, st, d)
		}),
	)

	go w.Run(ctx)
	_ = q.Push(task.New("resize", img, requestID))
	...
	q.Shutdown(1)
	<-w.Done()

Retrieve statistics:

	stats := w.Stats()
	fmt.Printf("Worker %d: %s, success rate %.2f\n", stats.ID, stats.State, stats.GetSuccessRate())
*/
package worker
