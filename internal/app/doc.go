// Package app wires the relay together and owns its lifecycle.
//
// A Relay composes the connection registry, the TCP accept loop, the operator broadcaster and
// the optional admin HTTP server. Run blocks until its context is cancelled, then stops
// accepting, closes every client and waits for the readers to deregister.
package app
