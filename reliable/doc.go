// Package reliable holds the receive-side state of one reliable messaging
// sequence: which message numbers arrived, whether the last number is known,
// and the close/terminate handshake that ends the sequence.
//
// InputConnection has no internal lock. Sequence-affecting messages of a
// session arrive one at a time; callers that may invoke it concurrently must
// serialize access themselves.
package reliable
