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
//	async.SafeGo(ctx, 30*time.Second, "session-pin", func(ctx context.Context) error {
//		// Task code with automatic panic recovery and timeout
//		return pinSession(ctx)
//	})
//
// WorkerPool: Managed pool of concurrent workers
//
//	pool := async.NewWorkerPool(ctx, 10, "verification", 30*time.Second)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//		return verifyDomain(ctx)
//	})
//
// Batch: Concurrent batch processing
//
//	errs := async.Batch(ctx, items, 5, "recheck", 30*time.Second,
//		func(ctx context.Context, item Item) error {
//			return process(ctx, item)
//		})
//
// # Features
//
// Panic Recovery: Captures panics with stack traces
// Timeout Enforcement: Per-task timeouts
// Context Cancellation: Respects context cancellation
// Error Collection: Non-blocking error channels
// Graceful Shutdown: Worker draining
//
// # Use Cases
//
// Session write-back after tenant resolution, background domain rechecks
//
// # Related Packages
//
//   - pkg/tenants: Uses SafeGo for session pin write-back
//   - pkg/domains: Uses Batch for concurrent verification sweeps
package async
