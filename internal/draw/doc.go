// Package draw implements the prize draw engine.
//
// NewPool builds the eligible entrant pool for one prize, Selector picks a winner with
// probability proportional to entry count, Session is the per-event interactive state machine
// (ready -> drawing -> revealed -> locked | redrawing) and DrawAll is the batch mode.
// Nothing here performs I/O; callers load tallies and persist results.
package draw
