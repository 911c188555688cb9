// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (event.go, comment.go, room.go, timeline.go, etc.) hold shared
// types and the contracts of the excluded collaborators. No implementation code beyond
// small value helpers. Keeps adapters and core packages free of circular imports.
package domain
