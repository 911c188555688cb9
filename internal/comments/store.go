package comments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanpulse/internal/adapter/metrics"
	"github.com/pscheid92/fanpulse/internal/domain"
	"golang.org/x/sync/singleflight"
)

// createdAtStep keeps timestamps strictly increasing within a parent at the
// resolution the document store keeps.
const createdAtStep = time.Microsecond

// Store is the in-memory comment graph of every event touched by this process.
type Store struct {
	events  domain.EventRepository
	repo    domain.CommentRepository
	clock   clockwork.Clock
	limits  Limits
	metrics *metrics.CommentMetrics
	newID   func() string

	mu     sync.RWMutex
	graphs map[domain.EventRef]*graph
	// epochs count invalidations per event; a load started in an older epoch is not kept.
	epochs map[domain.EventRef]uint64
	loads  singleflight.Group
	gates  *keyedMutex
}

// graph holds one event's comments ordered by createdAt.
type graph struct {
	mu       sync.RWMutex
	comments []*node
	byID     map[string]*node
	last     time.Time
}

// node guards a single comment together with its replies and likers.
type node struct {
	mu        sync.Mutex
	comment   domain.Comment
	replies   map[string]int
	lastReply time.Time
	// likeVersions holds the last like version per target, keyed by reply id ("" for the comment).
	likeVersions map[string]uint64
}

// NewStore creates a store. commentMetrics may be nil.
func NewStore(events domain.EventRepository, repo domain.CommentRepository, clock clockwork.Clock, limits Limits, commentMetrics *metrics.CommentMetrics) *Store {
	return &Store{
		events:  events,
		repo:    repo,
		clock:   clock,
		limits:  limits,
		metrics: commentMetrics,
		newID:   func() string { return uuid.NewString() },
		graphs:  make(map[domain.EventRef]*graph),
		epochs:  make(map[domain.EventRef]uint64),
		gates:   newKeyedMutex(),
	}
}

// Comments returns a snapshot of the event's comments in createdAt order.
func (s *Store) Comments(ctx context.Context, ref domain.EventRef) ([]domain.Comment, error) {
	g, err := s.graph(ctx, ref)
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	nodes := slices.Clone(g.comments)
	g.mu.RUnlock()

	out := make([]domain.Comment, len(nodes))
	for i, n := range nodes {
		out[i] = n.snapshot()
	}
	return out, nil
}

// AddComment appends a comment to the event. The body is validated against the
// event kind's limit and persisted before it becomes visible.
func (s *Store) AddComment(ctx context.Context, ref domain.EventRef, authorID, body string) (domain.Comment, error) {
	body, err := normalizeBody(body, s.limits.For(ref.Kind))
	if err != nil {
		s.record("add_comment", "invalid")
		return domain.Comment{}, err
	}

	g, err := s.graph(ctx, ref)
	if err != nil {
		s.record("add_comment", lookupResult(err))
		return domain.Comment{}, err
	}

	g.mu.Lock()
	createdAt := reserve(&g.last, s.clock.Now())
	g.mu.Unlock()

	comment := domain.Comment{
		ID:        s.newID(),
		Event:     ref,
		AuthorID:  authorID,
		Body:      body,
		LikedBy:   domain.NewLikeSet(),
		CreatedAt: createdAt,
	}

	if err := s.persist(ctx, "add_comment", func() error { return s.repo.PersistComment(ctx, comment) }); err != nil {
		return domain.Comment{}, err
	}

	n := newNode(comment)
	g.mu.Lock()
	g.insert(n)
	g.mu.Unlock()

	s.record("add_comment", "ok")
	slog.DebugContext(ctx, "Comment added", "event", ref.String(), "comment_id", comment.ID)
	return comment.Clone(), nil
}

// AddReply appends a reply to a comment of the event.
func (s *Store) AddReply(ctx context.Context, ref domain.EventRef, commentID, authorID, body string) (domain.Reply, error) {
	body, err := normalizeBody(body, s.limits.For(ref.Kind))
	if err != nil {
		s.record("add_reply", "invalid")
		return domain.Reply{}, err
	}

	n, err := s.node(ctx, ref, commentID)
	if err != nil {
		s.record("add_reply", lookupResult(err))
		return domain.Reply{}, err
	}

	n.mu.Lock()
	createdAt := reserve(&n.lastReply, s.clock.Now())
	n.mu.Unlock()

	reply := domain.Reply{
		ID:        s.newID(),
		CommentID: commentID,
		AuthorID:  authorID,
		Body:      body,
		LikedBy:   domain.NewLikeSet(),
		CreatedAt: createdAt,
	}

	if err := s.persist(ctx, "add_reply", func() error { return s.repo.PersistReply(ctx, ref, reply) }); err != nil {
		return domain.Reply{}, err
	}

	n.mu.Lock()
	n.insertReply(reply)
	n.mu.Unlock()

	s.record("add_reply", "ok")
	slog.DebugContext(ctx, "Reply added", "event", ref.String(), "comment_id", commentID, "reply_id", reply.ID)
	return reply.Clone(), nil
}

// ToggleLike flips userID's like on a comment, or on a reply when target.ReplyID is set.
// Toggles by the same user on the same target are serialized across the persistence
// call; toggles by different users only contend on the in-memory update.
func (s *Store) ToggleLike(ctx context.Context, ref domain.EventRef, target domain.LikeTarget, userID string) (domain.LikeResult, error) {
	n, err := s.node(ctx, ref, target.CommentID)
	if err != nil {
		s.record("toggle_like", lookupResult(err))
		return domain.LikeResult{}, err
	}

	unlock := s.gates.Lock(gateKey(ref, target, userID))
	defer unlock()

	n.mu.Lock()
	likers, err := n.likers(target)
	var liked bool
	if err == nil {
		liked = likers.Has(userID)
	}
	n.mu.Unlock()
	if err != nil {
		s.record("toggle_like", "not_found")
		return domain.LikeResult{}, err
	}

	want := !liked
	if err := s.persist(ctx, "toggle_like", func() error { return s.repo.PersistLike(ctx, ref, target, userID, want) }); err != nil {
		return domain.LikeResult{}, err
	}

	n.mu.Lock()
	likers, _ = n.likers(target)
	if want {
		likers[userID] = struct{}{}
	} else {
		delete(likers, userID)
	}
	count := likers.Len()
	version := n.nextLikeVersion(target, s.clock.Now())
	n.mu.Unlock()

	s.record("toggle_like", "ok")
	return domain.LikeResult{Target: target, UserID: userID, Liked: want, LikeCount: count, Version: version}, nil
}

func (s *Store) persist(ctx context.Context, operation string, fn func() error) error {
	start := s.clock.Now()
	err := fn()
	if s.metrics != nil {
		s.metrics.PersistDuration.WithLabelValues(operation).Observe(s.clock.Since(start).Seconds())
	}
	if err != nil {
		s.record(operation, "persistence_error")
		slog.WarnContext(ctx, "Persisting mutation failed", "operation", operation, "error", err)
		return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, operation, err)
	}
	return nil
}

func (s *Store) record(operation, result string) {
	if s.metrics != nil {
		s.metrics.Mutations.WithLabelValues(operation, result).Inc()
	}
}

func lookupResult(err error) string {
	if errors.Is(err, domain.ErrPersistence) {
		return "persistence_error"
	}
	return "not_found"
}

func (s *Store) node(ctx context.Context, ref domain.EventRef, commentID string) (*node, error) {
	g, err := s.graph(ctx, ref)
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	n, ok := g.byID[commentID]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", domain.ErrCommentNotFound, commentID, ref)
	}
	return n, nil
}

// Invalidate drops the event's graph, so the next use reloads it from the document
// store. It is called when another instance changed the event.
func (s *Store) Invalidate(ref domain.EventRef) {
	s.mu.Lock()
	_, cached := s.graphs[ref]
	delete(s.graphs, ref)
	s.epochs[ref]++
	s.mu.Unlock()

	if cached {
		slog.Debug("Event graph invalidated", "event", ref.String())
	}
}

// graph returns the event's graph, loading it from the document store on first use.
// Concurrent first uses share one load.
func (s *Store) graph(ctx context.Context, ref domain.EventRef) (*graph, error) {
	s.mu.RLock()
	g, ok := s.graphs[ref]
	epoch := s.epochs[ref]
	s.mu.RUnlock()
	if ok {
		return g, nil
	}

	v, err, _ := s.loads.Do(fmt.Sprintf("%s#%d", ref, epoch), func() (any, error) {
		s.mu.RLock()
		existing, ok := s.graphs[ref]
		s.mu.RUnlock()
		if ok {
			return existing, nil
		}

		// Joined callers share this load, so one of them going away must not fail the rest.
		loaded, err := s.events.LoadEvent(context.WithoutCancel(ctx), ref)
		if err != nil {
			s.hydrated(err)
			if errors.Is(err, domain.ErrEventNotFound) {
				return nil, fmt.Errorf("%w: %s", domain.ErrEventNotFound, ref)
			}
			return nil, fmt.Errorf("%w: load event %s: %w", domain.ErrPersistence, ref, err)
		}
		s.hydrated(nil)

		built := newGraph(ref, loaded.Comments)
		s.mu.Lock()
		if s.epochs[ref] == epoch {
			s.graphs[ref] = built
		}
		s.mu.Unlock()

		slog.DebugContext(ctx, "Event graph hydrated", "event", ref.String(), "comments", len(loaded.Comments))
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*graph), nil
}

func (s *Store) hydrated(err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	s.metrics.Hydrations.WithLabelValues(result).Inc()
}

func newGraph(ref domain.EventRef, stored []domain.Comment) *graph {
	g := &graph{byID: make(map[string]*node, len(stored))}
	for _, c := range stored {
		c = c.Clone()
		c.Event = ref
		if c.LikedBy == nil {
			c.LikedBy = domain.NewLikeSet()
		}
		slices.SortStableFunc(c.Replies, func(a, b domain.Reply) int { return a.CreatedAt.Compare(b.CreatedAt) })
		g.insert(newNode(c))
		if c.CreatedAt.After(g.last) {
			g.last = c.CreatedAt
		}
	}
	return g
}

// insert places n after every comment created at or before it.
func (g *graph) insert(n *node) {
	at := n.comment.CreatedAt
	i, _ := slices.BinarySearchFunc(g.comments, at, func(e *node, t time.Time) int {
		if e.comment.CreatedAt.After(t) {
			return 1
		}
		return -1
	})
	g.comments = slices.Insert(g.comments, i, n)
	g.byID[n.comment.ID] = n
}

func newNode(c domain.Comment) *node {
	n := &node{comment: c, replies: make(map[string]int, len(c.Replies)), likeVersions: make(map[string]uint64)}
	for i := range n.comment.Replies {
		r := &n.comment.Replies[i]
		if r.LikedBy == nil {
			r.LikedBy = domain.NewLikeSet()
		}
		n.replies[r.ID] = i
		if r.CreatedAt.After(n.lastReply) {
			n.lastReply = r.CreatedAt
		}
	}
	return n
}

func (n *node) snapshot() domain.Comment {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.comment.Clone()
}

// insertReply keeps replies ordered by their reserved createdAt.
func (n *node) insertReply(r domain.Reply) {
	replies := n.comment.Replies
	i := len(replies)
	for i > 0 && replies[i-1].CreatedAt.After(r.CreatedAt) {
		i--
	}
	n.comment.Replies = slices.Insert(replies, i, r)
	for j := i; j < len(n.comment.Replies); j++ {
		n.replies[n.comment.Replies[j].ID] = j
	}
}

func (n *node) likers(target domain.LikeTarget) (domain.LikeSet, error) {
	if !target.IsReply() {
		return n.comment.LikedBy, nil
	}
	i, ok := n.replies[target.ReplyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s on comment %s", domain.ErrReplyNotFound, target.ReplyID, target.CommentID)
	}
	return n.comment.Replies[i].LikedBy, nil
}

// nextLikeVersion orders toggles on one target in the order they were applied. Versions
// start from the clock so they keep increasing after the graph is reloaded. Callers hold n.mu.
func (n *node) nextLikeVersion(target domain.LikeTarget, now time.Time) uint64 {
	next := uint64(max(now.UnixMicro(), 0))
	if last := n.likeVersions[target.ReplyID]; next <= last {
		next = last + 1
	}
	n.likeVersions[target.ReplyID] = next
	return next
}

// reserve returns a timestamp strictly after *last and records it.
func reserve(last *time.Time, now time.Time) time.Time {
	t := now.UTC().Truncate(createdAtStep)
	if !t.After(*last) {
		t = last.Add(createdAtStep)
	}
	*last = t
	return t
}

func gateKey(ref domain.EventRef, target domain.LikeTarget, userID string) string {
	return ref.String() + "/" + target.CommentID + "/" + target.ReplyID + "/" + userID
}
