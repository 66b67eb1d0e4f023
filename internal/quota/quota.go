// Package quota rations calls to the reply generator with a sliding burst
// window and a persisted daily cap.
package quota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/tOgg1/cheerfeed/internal/kv"
	"github.com/tOgg1/cheerfeed/internal/logging"
)

// DateLayout is the format of the persisted last-call date.
const DateLayout = "2006-01-02"

// Config holds the rationing parameters.
type Config struct {
	BurstThreshold int           `yaml:"burst_threshold" mapstructure:"burst_threshold"`
	BurstWindow    time.Duration `yaml:"burst_window" mapstructure:"burst_window"`
	BlockDuration  time.Duration `yaml:"block_duration" mapstructure:"block_duration"`
	DailyLimit     int           `yaml:"daily_limit" mapstructure:"daily_limit"`
}

// DefaultConfig returns 10 calls per minute, a 10 minute block and 50
// calls per day.
func DefaultConfig() Config {
	return Config{
		BurstThreshold: 10,
		BurstWindow:    60 * time.Second,
		BlockDuration:  10 * time.Minute,
		DailyLimit:     50,
	}
}

// Validate checks that every limit is positive.
func (c Config) Validate() error {
	var errs []error
	if c.BurstThreshold <= 0 {
		errs = append(errs, errors.New("burst_threshold must be positive"))
	}
	if c.BurstWindow <= 0 {
		errs = append(errs, errors.New("burst_window must be positive"))
	}
	if c.BlockDuration <= 0 {
		errs = append(errs, errors.New("block_duration must be positive"))
	}
	if c.DailyLimit <= 0 {
		errs = append(errs, errors.New("daily_limit must be positive"))
	}
	return errors.Join(errs...)
}

// Decision is the outcome of CheckAndManage.
type Decision struct {
	CanProceed bool   `json:"canProceed"`
	Message    string `json:"message,omitempty"`
}

// Status is a read-only snapshot of the tracker.
type Status struct {
	DailyCount        int        `json:"dailyCount"`
	DailyLimit        int        `json:"dailyLimit"`
	Date              string     `json:"date"`
	DailyLimitReached bool       `json:"dailyLimitReached"`
	RecentCalls       int        `json:"recentCalls"`
	BurstThreshold    int        `json:"burstThreshold"`
	Blocked           bool       `json:"blocked"`
	BlockedUntil      *time.Time `json:"blockedUntil,omitempty"`
	Message           string     `json:"message,omitempty"`
}

// Tracker enforces the burst window and the daily cap. It is safe for
// concurrent use.
type Tracker struct {
	cfg    Config
	store  kv.Store
	clock  clock.Clock
	logger zerolog.Logger

	mu           sync.Mutex
	calls        []time.Time
	blocked      bool
	blockedUntil time.Time
	dailyCount   int
	date         string
	limitReached bool
	message      string
}

// NewTracker loads the persisted counters and runs the day-rollover check.
func NewTracker(ctx context.Context, cfg Config, store kv.Store, clk clock.Clock) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid quota config: %w", err)
	}
	if clk == nil {
		clk = clock.New()
	}
	t := &Tracker{
		cfg:    cfg,
		store:  store,
		clock:  clk,
		logger: logging.Component("quota"),
	}

	countText, _, err := store.Get(ctx, kv.KeyDailyCallCount)
	if err != nil {
		return nil, fmt.Errorf("load daily call count: %w", err)
	}
	date, _, err := store.Get(ctx, kv.KeyLastCallDate)
	if err != nil {
		return nil, fmt.Errorf("load last call date: %w", err)
	}

	t.date = date
	if count, err := strconv.Atoi(countText); err == nil && count > 0 {
		t.dailyCount = count
	} else if countText != "" && err != nil {
		t.logger.Warn().Str("value", countText).Msg("ignoring malformed daily call count")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked(ctx)
	if t.limitReached {
		t.message = t.dailyLimitMessage()
	}
	return t, nil
}

// CheckAndManage decides whether a generation call may be issued now.
func (t *Tracker) CheckAndManage(ctx context.Context) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.message = ""
	now := t.clock.Now()
	t.rolloverLocked(ctx)

	if t.blocked {
		if now.Before(t.blockedUntil) {
			return t.denyLocked(fmt.Sprintf(
				"API usage is temporarily restricted. Please try again in about %d minutes.",
				ceilMinutes(t.blockedUntil.Sub(now))))
		}
		t.blocked = false
		t.blockedUntil = time.Time{}
		t.calls = nil
		t.logger.Debug().Msg("burst block expired")
	}

	if t.limitReached || t.dailyCount >= t.cfg.DailyLimit {
		t.limitReached = true
		t.persistLocked(ctx, now)
		return t.denyLocked(t.dailyLimitMessage())
	}

	recent := t.recentLocked(now)
	if len(recent) >= t.cfg.BurstThreshold {
		t.blocked = true
		t.blockedUntil = now.Add(t.cfg.BlockDuration)
		t.calls = recent
		t.logger.Info().
			Int("recent_calls", len(recent)).
			Time("blocked_until", t.blockedUntil).
			Msg("burst limit reached")
		return t.denyLocked(fmt.Sprintf(
			"Too many API requests in a short period. API usage is restricted for about %d minutes.",
			ceilMinutes(t.cfg.BlockDuration)))
	}

	return Decision{CanProceed: true}
}

// Record accounts for one issued generation call.
func (t *Tracker) Record(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.calls = append(t.recentLocked(now), now)
	t.dailyCount++
	t.persistLocked(ctx, now)

	if t.dailyCount >= t.cfg.DailyLimit {
		t.limitReached = true
		t.message = t.dailyLimitMessage()
		t.logger.Info().Int("daily_count", t.dailyCount).Msg("daily limit reached")
	}
}

// Message returns the current quota banner, if any.
func (t *Tracker) Message() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.message
}

// Status returns a snapshot of the counters.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	st := Status{
		DailyCount:        t.dailyCount,
		DailyLimit:        t.cfg.DailyLimit,
		Date:              t.date,
		DailyLimitReached: t.limitReached,
		RecentCalls:       len(t.recentLocked(now)),
		BurstThreshold:    t.cfg.BurstThreshold,
		Message:           t.message,
	}
	if t.blocked && now.Before(t.blockedUntil) {
		until := t.blockedUntil
		st.Blocked = true
		st.BlockedUntil = &until
	}
	return st
}

func (t *Tracker) denyLocked(msg string) Decision {
	t.message = msg
	return Decision{CanProceed: false, Message: msg}
}

func (t *Tracker) dailyLimitMessage() string {
	return fmt.Sprintf("Daily API limit (%d calls) reached. Please try again tomorrow.", t.cfg.DailyLimit)
}

// recentLocked returns the calls that are still inside the burst window.
func (t *Tracker) recentLocked(now time.Time) []time.Time {
	recent := make([]time.Time, 0, len(t.calls)+1)
	for _, ts := range t.calls {
		if now.Sub(ts) < t.cfg.BurstWindow {
			recent = append(recent, ts)
		}
	}
	return recent
}

// rolloverLocked resets the daily counter when the calendar day changed.
func (t *Tracker) rolloverLocked(ctx context.Context) {
	now := t.clock.Now()
	today := now.UTC().Format(DateLayout)
	if t.date == today {
		if t.dailyCount >= t.cfg.DailyLimit {
			t.limitReached = true
		}
		return
	}

	t.logger.Debug().Str("previous", t.date).Str("today", today).Msg("daily counter rollover")
	t.dailyCount = 0
	t.limitReached = false
	t.persistLocked(ctx, now)
}

func (t *Tracker) persistLocked(ctx context.Context, now time.Time) {
	t.date = now.UTC().Format(DateLayout)
	err := kv.SetMany(ctx, t.store, map[string]string{
		kv.KeyDailyCallCount: strconv.Itoa(t.dailyCount),
		kv.KeyLastCallDate:   t.date,
	})
	if err != nil {
		t.logger.Warn().Err(err).Msg("persist daily counters")
	}
}

func ceilMinutes(d time.Duration) int {
	return int(math.Ceil(d.Minutes()))
}
