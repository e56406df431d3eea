// Package tracker keeps the set of live channels owned by a listener or
// session so they can be closed or aborted as a unit.
package tracker
