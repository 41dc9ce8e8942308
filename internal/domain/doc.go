// Package domain defines the core relay types and interfaces.
//
// Concept-oriented files (connection.go, errors.go) hold the shared types and cross-cutting contracts.
// No implementation code - just contracts. Keeps adapters and the registry free of circular imports.
package domain
