// Package pipeline provides a framework for executing report generation
// steps in sequence.
//
// The pipeline pattern is used to turn a roster and a calendar range into a
// finished mention report through multiple stages: session warm-up, count
// collection, aggregation, persistence, rendering, and archival. Each stage
// is implemented as a Step that receives the current run and can modify it.
//
// Design decision: We use a pipeline pattern instead of direct function calls
// because:
// 1. It allows easy addition/removal of steps without modifying core logic
// 2. It provides consistent error handling and logging across steps
// 3. It supports cancellation via context for long-running report jobs
// 4. The scheduler and the one-shot CLI command share the same assembly
package pipeline
