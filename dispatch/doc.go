// Package dispatch serializes items from any number of producers into a
// single, non-reentrant delivery loop per channel.
package dispatch
