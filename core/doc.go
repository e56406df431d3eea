// Package core contains the shared contracts, configuration, error envelope
// and observability helpers of the reliable-messaging receive side. Lower
// level packages (reliable, delivery, dispatch, tracker, session) depend on
// this package; core must not depend on them or on any adapter.
package core
