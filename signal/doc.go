// Package signal provides WaitObject, a single-slot asynchronous signal that
// can be awaited with cancellation and short-circuited by abort or fault.
package signal
