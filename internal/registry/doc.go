// Package registry implements the shared connection table.
//
// A single mutex guards inserts, removals and snapshots alike. Snapshot copies the entries out so
// callers can write to peers without holding the lock. Entries are removed by the owning reader
// when it observes EOF or a read error; CloseAll only closes peers so those readers wake up.
package registry
