// Package timeline owns the feed: posts, quote-reposts, their reply
// forests and the generation state machines that fill them.
package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/cheerfeed/internal/events"
	"github.com/tOgg1/cheerfeed/internal/kv"
	"github.com/tOgg1/cheerfeed/internal/llm"
	"github.com/tOgg1/cheerfeed/internal/logging"
	"github.com/tOgg1/cheerfeed/internal/models"
	"github.com/tOgg1/cheerfeed/internal/persona"
	"github.com/tOgg1/cheerfeed/internal/quota"
	"github.com/tOgg1/cheerfeed/internal/reveal"
)

// Deps are the collaborators of a Store. KV, Quota and Generator are
// required.
type Deps struct {
	KV        kv.Store
	Quota     *quota.Tracker
	Generator llm.Generator
	Minter    *persona.Minter
	Publisher events.Publisher
	Clock     clock.Clock

	// Rand seeds the reveal and quote delays.
	Rand rand.Source

	// NewID mints entity ids. Defaults to uuid.NewString.
	NewID func() string
}

// Store is the authoritative timeline. Items handed out are immutable
// snapshots; every change replaces the affected item.
type Store struct {
	kv     kv.Store
	quota  *quota.Tracker
	gen    llm.Generator
	minter *persona.Minter
	pub    events.Publisher
	clock  clock.Clock
	newID  func() string
	cfg    Config
	logger zerolog.Logger

	reveals *reveal.Scheduler
	quotes  *reveal.Scheduler

	ctx    context.Context
	cancel context.CancelFunc
	ops    sync.WaitGroup

	mu            sync.Mutex
	items         models.Timeline
	mainUser      models.UserProfile
	banner        string
	pager         *Paginator
	inflight      map[string]struct{}
	pendingQuotes map[string]*models.Post
	outbox        []*models.Event
	closed        bool
}

// New builds a Store and restores the persisted user name and timeline.
// A corrupt snapshot is dropped and its key deleted.
func New(ctx context.Context, deps Deps, cfg Config) (*Store, error) {
	if deps.KV == nil || deps.Quota == nil || deps.Generator == nil {
		return nil, errors.New("timeline: kv, quota and generator are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("timeline config: %w", err)
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Minter == nil {
		deps.Minter = persona.NewMinter(nil)
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	s := &Store{
		kv:            deps.KV,
		quota:         deps.Quota,
		gen:           deps.Generator,
		minter:        deps.Minter,
		pub:           deps.Publisher,
		clock:         deps.Clock,
		newID:         deps.NewID,
		cfg:           cfg,
		logger:        logging.Component("timeline"),
		pager:         NewPaginator(cfg.PageSize, cfg.PageIncrement),
		inflight:      make(map[string]struct{}),
		pendingQuotes: make(map[string]*models.Post),
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	revealOpts := []reveal.Option{reveal.WithClock(deps.Clock), reveal.WithName("timeline.reveal")}
	quoteOpts := []reveal.Option{reveal.WithClock(deps.Clock), reveal.WithName("timeline.quote")}
	if deps.Rand != nil {
		rng := rand.New(deps.Rand)
		revealOpts = append(revealOpts, reveal.WithRand(rand.NewPCG(rng.Uint64(), rng.Uint64())))
		quoteOpts = append(quoteOpts, reveal.WithRand(rand.NewPCG(rng.Uint64(), rng.Uint64())))
	}
	s.reveals = reveal.New(reveal.Window{Min: cfg.RevealMin, Max: cfg.RevealMax}, s.revealStep, revealOpts...)
	s.quotes = reveal.New(reveal.Window{Min: cfg.QuoteDelayMin, Max: cfg.QuoteDelayMax}, s.quoteStep, quoteOpts...)

	s.mainUser = persona.MainUser(s.loadUserName(ctx))
	s.items = resetTransient(s.loadSnapshot(ctx))
	return s, nil
}

func (s *Store) loadUserName(ctx context.Context) string {
	raw, ok, err := s.kv.Get(ctx, kv.KeyMainUserName)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read user name")
		return models.DefaultMainUserName
	}
	if !ok {
		return models.DefaultMainUserName
	}
	name, err := models.NormalizeUserName(raw)
	if err != nil {
		s.logger.Warn().Err(err).Msg("ignoring stored user name")
		return models.DefaultMainUserName
	}
	return name
}

func (s *Store) loadSnapshot(ctx context.Context) models.Timeline {
	raw, ok, err := s.kv.Get(ctx, kv.KeyTimelineItems)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read timeline snapshot")
		return nil
	}
	if !ok {
		return nil
	}
	items, err := models.DecodeTimeline([]byte(raw))
	if err != nil {
		s.logger.Warn().Err(err).Msg("discarding corrupt timeline snapshot")
		if err := s.kv.Delete(ctx, kv.KeyTimelineItems); err != nil {
			s.logger.Warn().Err(err).Msg("failed to delete corrupt snapshot")
		}
		return nil
	}
	s.logger.Debug().Int("items", len(items)).Msg("timeline restored")
	return items
}

// resetTransient clears in-flight flags left over from a previous run.
// A post whose first round never finished gets an error and may load more.
func resetTransient(items models.Timeline) models.Timeline {
	clearChildren := func(r *models.Reply) *models.Reply {
		if !r.IsGeneratingChildren {
			return r
		}
		cp := r.Clone()
		cp.IsGeneratingChildren = false
		return cp
	}
	for i, item := range items {
		switch it := item.(type) {
		case *models.Post:
			p := it.Clone()
			if p.IsGeneratingReplies && p.Replies.Len() == 0 {
				p.ErrorGeneratingReplies = MsgInterrupted
				p.CanLoadMore = true
			}
			p.IsGeneratingReplies = false
			p.IsGeneratingMoreReplies = false
			p.Replies = p.Replies.MapAll(clearChildren)
			items[i] = p
		case *models.QuoteRetweet:
			items[i] = it.WithReplySet(it.Replies.MapAll(clearChildren))
		}
	}
	return items
}

// Start launches reveal chains for restored posts with hidden replies.
func (s *Store) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if p, ok := item.(*models.Post); ok && p.Settled() && p.Replies.Backlog() > 0 {
			s.reveals.Ensure(p.ID)
		}
	}
}

// Close cancels every timer and in-flight request and waits for running
// operations to return.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()
	s.mu.Unlock()

	s.reveals.Stop()
	s.quotes.Stop()
	s.ops.Wait()
	s.logger.Debug().Msg("timeline store closed")
	return nil
}

// begin registers a running operation. The caller must call s.ops.Done.
func (s *Store) beginLocked() error {
	if s.closed {
		return ErrClosed
	}
	s.ops.Add(1)
	return nil
}

// callContext derives a request context that also ends when the store
// closes.
func (s *Store) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// update applies fn under the lock, persists the snapshot and publishes
// queued events. fn returning errUnchanged skips persistence.
func (s *Store) update(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if err := fn(); err != nil {
		s.outbox = nil
		s.mu.Unlock()
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	s.persistLocked(ctx)
	queued := s.outbox
	s.outbox = nil
	s.mu.Unlock()

	s.publish(ctx, queued)
	return nil
}

// commitLocked persists and hands back the queued events for publishing
// after the caller unlocks.
func (s *Store) commitLocked(ctx context.Context) []*models.Event {
	s.persistLocked(ctx)
	queued := s.outbox
	s.outbox = nil
	return queued
}

func (s *Store) persistLocked(ctx context.Context) {
	data, err := json.Marshal(s.items)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode timeline")
		return
	}
	if err := s.kv.Set(context.WithoutCancel(ctx), kv.KeyTimelineItems, string(data)); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist timeline")
	}
}

func (s *Store) emitLocked(eventType models.EventType, entityType models.EntityType, entityID string, payload models.TimelinePayload) {
	s.outbox = append(s.outbox, models.NewEvent(eventType, entityType, entityID, payload))
}

func (s *Store) publish(ctx context.Context, queued []*models.Event) {
	if s.pub == nil {
		return
	}
	for _, event := range queued {
		s.pub.Publish(context.WithoutCancel(ctx), event)
	}
}

func (s *Store) nowMillis() int64 {
	return s.clock.Now().UnixMilli()
}

func (s *Store) acquireLocked(key string) error {
	if _, busy := s.inflight[key]; busy {
		return ErrInFlight
	}
	s.inflight[key] = struct{}{}
	return nil
}

func (s *Store) releaseLocked(key string) {
	delete(s.inflight, key)
}

// itemLocked returns the item and its index.
func (s *Store) itemLocked(id string) (models.TimelineItem, int, error) {
	i := s.items.Index(id)
	if i < 0 {
		return nil, -1, ErrItemNotFound
	}
	return s.items[i], i, nil
}

func (s *Store) postLocked(id string) (*models.Post, int, error) {
	item, i, err := s.itemLocked(id)
	if err != nil {
		return nil, -1, err
	}
	post, ok := item.(*models.Post)
	if !ok {
		return nil, -1, ErrItemNotFound
	}
	return post, i, nil
}

func (s *Store) quoteLocked(id string) (*models.QuoteRetweet, int, error) {
	item, i, err := s.itemLocked(id)
	if err != nil {
		return nil, -1, err
	}
	qr, ok := item.(*models.QuoteRetweet)
	if !ok {
		return nil, -1, ErrItemNotFound
	}
	return qr, i, nil
}

// prependLocked adds item at the top. The slice is reallocated so earlier
// Items() results stay intact.
func (s *Store) prependLocked(item models.TimelineItem) {
	items := make(models.Timeline, 0, len(s.items)+1)
	items = append(items, item)
	s.items = append(items, s.items...)
}

// replaceLocked swaps the item at i on a fresh slice.
func (s *Store) replaceLocked(i int, item models.TimelineItem) {
	items := slices.Clone(s.items)
	items[i] = item
	s.items = items
}

// recentTextsLocked returns the texts of the user's latest posts.
func (s *Store) recentTextsLocked() []string {
	if s.cfg.RecentContextPosts == 0 {
		return nil
	}
	var texts []string
	for _, item := range s.items {
		p, ok := item.(*models.Post)
		if !ok || !p.User.IsMainUser() {
			continue
		}
		texts = append(texts, p.Text)
		if len(texts) == s.cfg.RecentContextPosts {
			break
		}
	}
	return texts
}

func (s *Store) setBannerLocked(class models.ErrorClass) {
	if class != models.ErrorClassServiceUnavailable {
		return
	}
	s.banner = BannerServiceUnavailable
	s.emitLocked(models.EventTypeServiceUnavailable, models.EntityTypeSystem, "", models.TimelinePayload{
		Class:   class,
		Message: BannerServiceUnavailable,
	})
}

// SetMainUserName changes and persists the user's display name. Existing
// posts keep the name they were written with.
func (s *Store) SetMainUserName(ctx context.Context, name string) (models.UserProfile, error) {
	name, err := models.NormalizeUserName(name)
	if err != nil {
		return models.UserProfile{}, err
	}
	var profile models.UserProfile
	err = s.update(ctx, func() error {
		if err := s.kv.Set(context.WithoutCancel(ctx), kv.KeyMainUserName, name); err != nil {
			return fmt.Errorf("persist user name: %w", err)
		}
		s.mainUser.Name = name
		profile = s.mainUser
		s.emitLocked(models.EventTypeUserRenamed, models.EntityTypeUser, models.MainUserID, models.TimelinePayload{Message: name})
		return nil
	})
	return profile, err
}

// MainUser returns the human user's profile.
func (s *Store) MainUser() models.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mainUser
}

// Items returns the whole timeline, newest first.
func (s *Store) Items() models.Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// Item returns one entry by id.
func (s *Store) Item(id string) (models.TimelineItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, _, err := s.itemLocked(id)
	return item, err == nil
}

// Visible returns the entries inside the pagination window.
func (s *Store) Visible() models.Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items[:s.pager.Window(len(s.items))])
}

// Page describes the pagination window.
type Page struct {
	Visible     int  `json:"visible"`
	Total       int  `json:"total"`
	HasMore     bool `json:"hasMore"`
	CanCollapse bool `json:"canCollapse"`
}

func (s *Store) pageLocked() Page {
	total := len(s.items)
	return Page{
		Visible:     s.pager.Window(total),
		Total:       total,
		HasMore:     s.pager.HasMore(total),
		CanCollapse: s.pager.CanCollapse(total),
	}
}

// Page returns the current pagination state.
func (s *Store) Page() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageLocked()
}

// ShowMore widens the window by one increment.
func (s *Store) ShowMore() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pager.ShowMore(len(s.items))
	return s.pageLocked()
}

// Collapse shrinks the window to one page.
func (s *Store) Collapse() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pager.Collapse()
	return s.pageLocked()
}

// Banner returns the global service warning, if any.
func (s *Store) Banner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.banner
}

// QuotaMessage returns the current rate-limit notice, if any.
func (s *Store) QuotaMessage() string {
	return s.quota.Message()
}

// PendingReveals returns how many posts are still dripping replies.
func (s *Store) PendingReveals() int {
	return s.reveals.Pending()
}

// PendingQuotes returns how many quote-repost attempts are scheduled.
func (s *Store) PendingQuotes() int {
	return s.quotes.Pending()
}
