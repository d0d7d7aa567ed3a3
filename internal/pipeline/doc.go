// Package pipeline holds the review controller: the operations a human
// reviewer triggers against stage gates (approve, reject, revert, reset)
// as opposed to the generation runs the executor drives.
package pipeline
