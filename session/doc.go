// Package session composes the receive-side reliable messaging pieces into a
// per-sequence InputSession and a Listener that owns many of them.
package session
