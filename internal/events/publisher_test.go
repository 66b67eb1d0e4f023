package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tOgg1/cheerfeed/internal/models"
)

func TestFilter_Matches(t *testing.T) {
	created := &models.Event{
		Type:       models.EventTypePostCreated,
		EntityType: models.EntityTypePost,
		EntityID:   "post-1",
	}

	tests := []struct {
		name   string
		filter Filter
		event  *models.Event
		want   bool
	}{
		{name: "empty filter matches any event", filter: Filter{}, event: created, want: true},
		{name: "nil event returns false", filter: Filter{}, event: nil, want: false},
		{
			name:   "event type filter matches",
			filter: Filter{EventTypes: []models.EventType{models.EventTypeQuoteCreated, models.EventTypePostCreated}},
			event:  created,
			want:   true,
		},
		{
			name:   "event type filter rejects non-matching",
			filter: Filter{EventTypes: []models.EventType{models.EventTypeReplyRevealed}},
			event:  created,
			want:   false,
		},
		{
			name:   "entity type filter rejects non-matching",
			filter: Filter{EntityTypes: []models.EntityType{models.EntityTypeQuote}},
			event:  created,
			want:   false,
		},
		{
			name:   "entity id filter matches",
			filter: Filter{EntityTypes: []models.EntityType{models.EntityTypePost}, EntityID: "post-1"},
			event:  created,
			want:   true,
		},
		{
			name:   "entity id filter rejects non-matching",
			filter: Filter{EntityID: "post-2"},
			event:  created,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.event); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

type recordingRepo struct {
	mu      sync.Mutex
	events  []*models.Event
	err     error
	pruned  int
	maxSeen int
}

func (r *recordingRepo) Create(_ context.Context, event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingRepo) DeleteExcess(_ context.Context, maxCount int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruned++
	r.maxSeen = maxCount
	excess := len(r.events) - maxCount
	if excess <= 0 {
		return 0, nil
	}
	r.events = r.events[excess:]
	return int64(excess), nil
}

func TestPublishDeliversToMatchingSubscribers(t *testing.T) {
	p := NewInMemoryPublisher()

	var posts, all []*models.Event
	if err := p.Subscribe("posts", Filter{EntityTypes: []models.EntityType{models.EntityTypePost}}, func(e *models.Event) {
		posts = append(posts, e)
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := p.Subscribe("all", Filter{}, func(e *models.Event) {
		all = append(all, e)
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx := context.Background()
	p.Publish(ctx, models.NewEvent(models.EventTypePostCreated, models.EntityTypePost, "p1", nil))
	p.Publish(ctx, models.NewEvent(models.EventTypeQuoteCreated, models.EntityTypeQuote, "q1", nil))
	p.Publish(ctx, nil)

	if len(posts) != 1 || len(all) != 2 {
		t.Fatalf("posts=%d all=%d", len(posts), len(all))
	}
	if all[0].ID == "" || all[0].Timestamp.IsZero() {
		t.Fatalf("publish should stamp id and time: %+v", all[0])
	}

	if err := p.Unsubscribe("posts"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	p.Publish(ctx, models.NewEvent(models.EventTypePostSettled, models.EntityTypePost, "p1", nil))
	if len(posts) != 1 {
		t.Fatal("unsubscribed handler still invoked")
	}
	if p.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount = %d", p.SubscriberCount())
	}

	p.Close()
	if p.SubscriberCount() != 0 {
		t.Fatal("Close should drop subscriptions")
	}
}

func TestSubscribeErrors(t *testing.T) {
	p := NewInMemoryPublisher()
	noop := func(*models.Event) {}

	if err := p.Subscribe("", Filter{}, noop); !errors.Is(err, ErrInvalidSubscriptionID) {
		t.Fatalf("expected ErrInvalidSubscriptionID, got %v", err)
	}
	if err := p.Subscribe("a", Filter{}, nil); !errors.Is(err, ErrNilHandler) {
		t.Fatalf("expected ErrNilHandler, got %v", err)
	}
	if err := p.Subscribe("a", Filter{}, noop); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := p.Subscribe("a", Filter{}, noop); !errors.Is(err, ErrSubscriptionExists) {
		t.Fatalf("expected ErrSubscriptionExists, got %v", err)
	}
	if err := p.Unsubscribe("missing"); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}

func TestPublishPersistsAndPrunes(t *testing.T) {
	repo := &recordingRepo{}
	p := NewInMemoryPublisher(WithRepository(repo), WithRetention(3, 2))

	for i := 0; i < 6; i++ {
		p.Publish(context.Background(), models.NewEvent(models.EventTypeReplyRevealed, models.EntityTypePost, "p1", nil))
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.pruned != 3 {
		t.Fatalf("expected 3 prune passes, got %d", repo.pruned)
	}
	if repo.maxSeen != 3 || len(repo.events) != 3 {
		t.Fatalf("expected log trimmed to 3, got %d (max %d)", len(repo.events), repo.maxSeen)
	}
}

func TestPublishSurvivesPersistenceFailure(t *testing.T) {
	repo := &recordingRepo{err: errors.New("disk full")}
	p := NewInMemoryPublisher(WithRepository(repo))

	delivered := 0
	if err := p.Subscribe("s", Filter{}, func(*models.Event) { delivered++ }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	p.Publish(context.Background(), models.NewEvent(models.EventTypeUserRenamed, models.EntityTypeUser, "main-user", nil))
	if delivered != 1 {
		t.Fatalf("expected delivery despite persistence failure, got %d", delivered)
	}
}
