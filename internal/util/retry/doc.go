// Package retry provides exponential backoff retry logic for transient failures.
//
// [WithExponentialBackoff] retries an operation with configurable max retries,
// initial delay and maximum delay; the delay doubles after each failure. It backs the hypervisor API
// calls and the DHCP harvest loop of the deploy phase. Errors wrapped with
// [Fatal] stop the loop immediately; running out of retries yields an error
// matching [ErrExhausted].
package retry
