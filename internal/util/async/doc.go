// Package async provides utilities for parallel task execution with
// error collection.
//
// [RunParallel] executes named operations concurrently and reports the first
// failure; [Run] picks between that and strictly sequential execution. The
// orchestrator uses it to process independent network instances side by side.
package async
