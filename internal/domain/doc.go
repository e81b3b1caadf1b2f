// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (event.go, entry.go, prize.go, stream.go, notify.go, errors.go)
// hold shared types and the interfaces the app layer consumes. No implementation code, just contracts.
package domain
