// Package broadcast fans operator lines out to every registered connection.
//
// A fan-out works on a registry snapshot, so the registry lock is never held while writing.
// Each destination is written in its own goroutine under a write deadline, and fan-outs are
// serialized with each other so every client observes broadcasts in the same order.
package broadcast
