// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery, timeout
// enforcement, context cancellation, and error collection.
//
// # Key Functions
//
// SafeGo: Execute function in goroutine with safety features
//
//	async.SafeGo(ctx, 30*time.Second, "notifier dispatch", func(ctx context.Context) error {
//		return dispatch(ctx)
//	})
//
// WorkerPool: Managed pool of concurrent workers
//
//	pool := async.NewWorkerPool(ctx, 10, "cascade", 30*time.Second)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//		return reevaluate(ctx, accountID)
//	})
//
// Batch: Concurrent batch processing
//
//	errs := async.Batch(ctx, ids, 5, "sweep", 10*time.Second, func(ctx context.Context, id int64) error {
//		return reevaluate(ctx, id)
//	})
//
// # Related Packages
//
//   - pkg/cascade: Uses worker pools for trigger processing
//   - pkg/notify: Uses SafeGo for delivery
package async
