// Package rooms implements the room registry using the actor pattern.
//
// One goroutine owns the room → subscriber maps and processes join, leave and broadcast
// commands in order (no mutexes). Subscribers queue payloads without blocking; a
// subscriber that cannot accept a payload is dropped from every room and closed.
package rooms
