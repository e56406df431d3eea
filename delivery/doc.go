// Package delivery decides when a received item may reach the dispatcher.
//
// Unordered forwards every admitted item immediately. Ordered buffers items
// that arrive ahead of the delivery window and releases them strictly in
// sequence order. Both bound the number of undelivered items by a quota;
// admission failures are reported through CanEnqueue so callers can apply
// backpressure instead of failing.
//
// Strategies are single-owner and not safe for concurrent Enqueue calls.
package delivery
