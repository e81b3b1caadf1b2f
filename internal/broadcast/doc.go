// Package broadcast fans live entry messages out to event subscribers using the actor pattern.
//
// One goroutine owns the subscriber registry and processes commands from a channel (no mutexes).
// Every subscriber has its own writer goroutine with a bounded buffer, so a slow or dead
// connection is dropped without stalling delivery to the others. Transports plug in as Sinks.
package broadcast
