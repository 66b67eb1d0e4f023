package quota

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/cheerfeed/internal/kv"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestTracker(t *testing.T, store kv.Store) (*Tracker, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(start)
	tr, err := NewTracker(context.Background(), DefaultConfig(), store, mock)
	require.NoError(t, err)
	return tr, mock
}

func stored(t *testing.T, store kv.Store, key string) string {
	t.Helper()
	v, _, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	return v
}

func TestBurstLimitBlocksForTenMinutes(t *testing.T) {
	ctx := context.Background()
	tr, mock := newTestTracker(t, kv.NewMemory())

	for i := 0; i < 10; i++ {
		d := tr.CheckAndManage(ctx)
		require.True(t, d.CanProceed, "call %d", i)
		tr.Record(ctx)
		mock.Add(time.Second)
	}

	d := tr.CheckAndManage(ctx)
	require.False(t, d.CanProceed)
	require.Contains(t, d.Message, "about 10 minutes")
	require.Equal(t, d.Message, tr.Message())
	require.True(t, tr.Status().Blocked)

	mock.Add(5 * time.Minute)
	d = tr.CheckAndManage(ctx)
	require.False(t, d.CanProceed)
	require.Contains(t, d.Message, "about 5 minutes")

	mock.Add(5*time.Minute + time.Second)
	d = tr.CheckAndManage(ctx)
	require.True(t, d.CanProceed)
	require.Empty(t, tr.Message())
	require.Zero(t, tr.Status().RecentCalls)
}

func TestBurstWindowSlides(t *testing.T) {
	ctx := context.Background()
	tr, mock := newTestTracker(t, kv.NewMemory())

	for i := 0; i < 9; i++ {
		require.True(t, tr.CheckAndManage(ctx).CanProceed)
		tr.Record(ctx)
	}
	mock.Add(61 * time.Second)

	for i := 0; i < 9; i++ {
		require.True(t, tr.CheckAndManage(ctx).CanProceed, "call %d", i)
		tr.Record(ctx)
	}
	require.Equal(t, 9, tr.Status().RecentCalls)
}

func TestDailyLimit(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	tr, mock := newTestTracker(t, store)

	for i := 0; i < 50; i++ {
		require.True(t, tr.CheckAndManage(ctx).CanProceed, "call %d", i)
		tr.Record(ctx)
		mock.Add(10 * time.Second)
	}
	require.Equal(t, "Daily API limit (50 calls) reached. Please try again tomorrow.", tr.Message())
	require.Equal(t, "50", stored(t, store, kv.KeyDailyCallCount))
	require.Equal(t, "2026-03-01", stored(t, store, kv.KeyLastCallDate))

	d := tr.CheckAndManage(ctx)
	require.False(t, d.CanProceed)
	require.Equal(t, tr.Message(), d.Message, "one wording whether the limit is hit or checked")
	require.True(t, tr.Status().DailyLimitReached)
}

func TestRestoresLimitOnStartup(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	require.NoError(t, store.Set(ctx, kv.KeyDailyCallCount, "50"))
	require.NoError(t, store.Set(ctx, kv.KeyLastCallDate, "2026-03-01"))

	tr, _ := newTestTracker(t, store)
	require.Contains(t, tr.Message(), "Daily API limit")
	require.False(t, tr.CheckAndManage(ctx).CanProceed)
}

func TestRolloverOnStartupAndWhileRunning(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	require.NoError(t, store.Set(ctx, kv.KeyDailyCallCount, "50"))
	require.NoError(t, store.Set(ctx, kv.KeyLastCallDate, "2026-02-28"))

	tr, mock := newTestTracker(t, store)
	require.Empty(t, tr.Message())
	require.Equal(t, "0", stored(t, store, kv.KeyDailyCallCount))
	require.Equal(t, "2026-03-01", stored(t, store, kv.KeyLastCallDate))

	for i := 0; i < 50; i++ {
		tr.Record(ctx)
	}
	require.False(t, tr.CheckAndManage(ctx).CanProceed)

	mock.Add(12 * time.Hour)
	require.True(t, tr.CheckAndManage(ctx).CanProceed)
	st := tr.Status()
	require.Equal(t, "2026-03-02", st.Date)
	require.Zero(t, st.DailyCount)
}

func TestMalformedCountIsIgnored(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	require.NoError(t, store.Set(ctx, kv.KeyDailyCallCount, "many"))
	require.NoError(t, store.Set(ctx, kv.KeyLastCallDate, "2026-03-01"))

	tr, _ := newTestTracker(t, store)
	require.Zero(t, tr.Status().DailyCount)
	tr.Record(ctx)
	require.Equal(t, strconv.Itoa(1), stored(t, store, kv.KeyDailyCallCount))
}

// batchingStore counts how the tracker writes its counters.
type batchingStore struct {
	*kv.Memory
	sets    int
	batches []map[string]string
}

func (s *batchingStore) Set(ctx context.Context, key, value string) error {
	s.sets++
	return s.Memory.Set(ctx, key, value)
}

func (s *batchingStore) SetMany(ctx context.Context, values map[string]string) error {
	s.batches = append(s.batches, values)
	return s.Memory.SetMany(ctx, values)
}

func TestCountersPersistInOneBatch(t *testing.T) {
	ctx := context.Background()
	store := &batchingStore{Memory: kv.NewMemory()}
	tr, _ := newTestTracker(t, store)
	store.batches = nil

	tr.Record(ctx)
	require.Zero(t, store.sets)
	require.Len(t, store.batches, 1)
	require.Equal(t, map[string]string{
		kv.KeyDailyCallCount: "1",
		kv.KeyLastCallDate:   "2026-03-01",
	}, store.batches[0])
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.DailyLimit = 0
	cfg.BurstWindow = -time.Second
	err := cfg.Validate()
	require.ErrorContains(t, err, "daily_limit")
	require.ErrorContains(t, err, "burst_window")

	_, err = NewTracker(context.Background(), cfg, kv.NewMemory(), clock.NewMock())
	require.Error(t, err)
}
