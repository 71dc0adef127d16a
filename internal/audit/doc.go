// Package audit defines the event sink that the OAuth flows report security
// relevant actions to, together with a few sink implementations.
//
// Sinks are fire-and-forget. Callers go through Record, which stamps the
// event and recovers from a misbehaving sink so that auditing can never fail
// an authentication operation.
package audit
