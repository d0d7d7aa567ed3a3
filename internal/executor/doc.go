// Package executor runs stage generations. Start acquires the gate via
// a database compare-and-swap, dispatches the stage's producer on a
// background goroutine, and applies the result under the run id issued
// at start, so cancelled or superseded runs cannot write anything back.
package executor
