package dispatch

import (
	"testing"

	"github.com/pscheid92/fanpulse/internal/domain"
	"github.com/stretchr/testify/assert"
)

type recordingInvalidator struct {
	refs []domain.EventRef
}

func (r *recordingInvalidator) Invalidate(ref domain.EventRef) {
	r.refs = append(r.refs, ref)
}

func TestInvalidateOnRemote(t *testing.T) {
	stream := domain.EventRef{Kind: domain.EventKindLiveStream, ID: "5"}
	forum := domain.EventRef{Kind: domain.EventKindForum, ID: "9"}

	tests := []struct {
		name    string
		key     domain.RoomKey
		payload string
		want    []domain.EventRef
	}{
		{"new comment", domain.RoomKeyFor(stream), `{"type":"new-comment","eventId":"5","data":{}}`, []domain.EventRef{stream}},
		{"new reply", domain.RoomKeyFor(forum), `{"type":"new-reply","eventId":"9","data":{}}`, []domain.EventRef{forum}},
		{"like update", domain.RoomKeyFor(forum), `{"type":"like-update","eventId":"9","data":{}}`, []domain.EventRef{forum}},
		{"status update", domain.RoomKeyFor(stream), `{"type":"status-update","eventId":"5","data":{}}`, nil},
		{"garbage", domain.RoomKeyFor(stream), `not json`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &recordingInvalidator{}
			InvalidateOnRemote(inv)(tt.key, []byte(tt.payload))
			assert.Equal(t, tt.want, inv.refs)
		})
	}
}
