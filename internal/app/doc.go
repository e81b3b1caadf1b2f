// Package app provides the application service layer.
//
// Orchestrates use cases: entry intake, batch and interactive draws, winner notification
// and the live entry feed. Sits between HTTP handlers and domain repositories and
// serializes all work on one event behind a per-event lock.
package app
