// Package runner drives concurrent load against a name division service.
//
// The runner package has three parts:
//   - [Record], the immutable outcome of a single request
//   - [Driver], which sends one POST /divide with a random mode and batch
//   - [Pool], which runs isolated units of sequential requests and collects
//     their records
//
// # Basic Usage
//
// Each unit builds its own [Sender] through the factory, so no HTTP client or
// random source is shared between units:
//
//	pool, err := runner.NewPool(runner.Options{
//		Workers:           4,
//		RequestsPerWorker: 10,
//		BatchSize:         5,
//		MinDelay:          10 * time.Millisecond,
//		MaxDelay:          100 * time.Millisecond,
//		NewSender: func(workerID int) (runner.Sender, error) {
//			return runner.NewDriver(runner.DriverOptions{...})
//		},
//	})
//	result := pool.Run(ctx)
//
// # Failures
//
// A failed request is still a [Record]: Error carries the message and
// ErrorKind its class. A unit that cannot run (its sender could not be built
// or it panicked) is reported as a [UnitFailure] and never fabricates records.
//
// # Middleware
//
// [WithLogging] wraps a Sender and reports every failed record to a
// [FailureLogger].
package runner
