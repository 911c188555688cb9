// Package app provides the application service layer.
//
// Orchestrates use cases: event status, comment and reply posting, like toggles and forum
// timelines. Every mutation is committed through the comment store before it is dispatched
// to the event's room. Depends on domain interfaces, not concrete adapters.
package app
