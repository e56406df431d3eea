// Package sequence models the set of message numbers received on a reliable
// session as an immutable collection of disjoint, non-adjacent ranges.
package sequence
