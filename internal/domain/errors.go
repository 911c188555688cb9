package domain

import "errors"

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrCommentNotFound = errors.New("comment not found")
	ErrReplyNotFound   = errors.New("reply not found")
	ErrForumNotFound   = errors.New("forum not found")

	ErrEmptyBody   = errors.New("message body is empty")
	ErrBodyTooLong = errors.New("message body exceeds maximum length")

	ErrInvalidEventKind = errors.New("invalid event kind")
	ErrInvalidRoomKey   = errors.New("invalid room key")
	ErrRoomFull         = errors.New("room is full")

	// ErrPersistence marks a failed synchronous write; the mutation was not applied.
	ErrPersistence = errors.New("persistence failed")
)
