package comments

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pscheid92/fanpulse/internal/domain"
)

const (
	DefaultMaxLength      = 1000
	DefaultForumMaxLength = 500
)

// Limits caps body length in runes, per event kind.
type Limits struct {
	Default int
	PerKind map[domain.EventKind]int
}

func DefaultLimits() Limits {
	return Limits{
		Default: DefaultMaxLength,
		PerKind: map[domain.EventKind]int{domain.EventKindForum: DefaultForumMaxLength},
	}
}

func (l Limits) For(kind domain.EventKind) int {
	if n, ok := l.PerKind[kind]; ok {
		return n
	}
	return l.Default
}

// normalizeBody trims surrounding whitespace and enforces the limit.
func normalizeBody(body string, limit int) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", domain.ErrEmptyBody
	}
	if n := utf8.RuneCountInString(body); n > limit {
		return "", fmt.Errorf("%w: %d > %d characters", domain.ErrBodyTooLong, n, limit)
	}
	return body, nil
}
