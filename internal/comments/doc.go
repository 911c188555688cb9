// Package comments owns the threaded, likeable comment graphs of events.
//
// Graphs are hydrated lazily from the document store and kept in memory. Every mutation
// is validated, persisted synchronously, and only then applied to the in-memory graph, so
// a failed operation leaves nothing behind. Locks are held only around in-memory state:
// per event for comment ordering, per comment for replies and likes, and per
// (target, user) across the persistence call of a like toggle.
package comments
