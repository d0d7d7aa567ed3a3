// Package output persists pipeline state in SQLite: outputs, their
// per-stage review gates, scenes, typed stage products, the execution
// log, and the cost ledger. Gate transitions that race with running
// generations are expressed as conditional updates so concurrent
// starts, cancels, and completions resolve inside the database instead
// of in application locks.
package output
