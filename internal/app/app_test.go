package app

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/cheerfeed/internal/config"
	"github.com/tOgg1/cheerfeed/internal/kv"
	"github.com/tOgg1/cheerfeed/internal/llm"
	"github.com/tOgg1/cheerfeed/internal/models"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	dir := t.TempDir()
	cfg.Global.DataDir = dir
	cfg.Global.ConfigDir = dir
	cfg.Storage.Backend = backend
	cfg.LLM.Backend = config.LLMStatic
	cfg.Timeline.RevealMin = time.Millisecond
	cfg.Timeline.RevealMax = 2 * time.Millisecond
	cfg.Timeline.QuoteDelayMin = time.Hour
	cfg.Timeline.QuoteDelayMax = time.Hour
	return cfg
}

func TestNewMemoryBackend(t *testing.T) {
	a, err := New(context.Background(), testConfig(t, config.BackendMemory), Options{Rand: rand.NewPCG(1, 2)})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	require.IsType(t, &kv.Memory{}, a.KV)
	require.Nil(t, a.Database)

	post, err := a.Timeline.CreatePost(context.Background(), "hello there")
	require.NoError(t, err)
	require.True(t, post.Settled())
	require.NotZero(t, post.Replies.Len())
}

func TestNewSQLiteBackendPersistsEvents(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.BackendSQLite)

	a, err := New(ctx, cfg, Options{})
	require.NoError(t, err)
	require.NotNil(t, a.Database)
	require.Equal(t, filepath.Join(cfg.Global.DataDir, "cheerfeed.db"), a.Database.Path())

	_, err = a.Timeline.CreatePost(ctx, "first")
	require.NoError(t, err)

	recent, err := a.Events.Recent(ctx, 10)
	require.NoError(t, err)
	var types []models.EventType
	for _, ev := range recent {
		types = append(types, ev.Type)
	}
	require.Contains(t, types, models.EventTypePostCreated)
	require.Contains(t, types, models.EventTypePostSettled)
	require.NoError(t, a.Close())

	// The timeline survives a restart.
	b, err := New(ctx, cfg, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, b.Close()) })
	require.Len(t, b.Timeline.Items(), 1)
	require.Equal(t, 1, b.Quota.Status().DailyCount)
}

func TestNewFileBackend(t *testing.T) {
	cfg := testConfig(t, config.BackendFile)
	a, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	require.IsType(t, &kv.File{}, a.KV)
}

func TestOptionsOverride(t *testing.T) {
	gen := llm.Static{}
	store := kv.NewMemory()
	a, err := New(context.Background(), testConfig(t, config.BackendSQLite), Options{KV: store, Generator: gen})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	require.Same(t, store, a.KV)
	require.Equal(t, gen, a.Generator)
	require.Nil(t, a.Database)
}

func TestNewGenerator(t *testing.T) {
	ctx := context.Background()

	gen, err := NewGenerator(ctx, config.LLMConfig{Backend: config.LLMStatic})
	require.NoError(t, err)
	require.IsType(t, &llm.Demo{}, gen)

	gen, err = NewGenerator(ctx, config.LLMConfig{Backend: config.LLMProxy, ProxyURL: "http://127.0.0.1:1/proxy", Timeout: time.Second})
	require.NoError(t, err)
	require.IsType(t, &llm.ProxyClient{}, gen)

	gen, err = NewGenerator(ctx, config.LLMConfig{Backend: config.LLMGemini})
	require.NoError(t, err)
	require.IsType(t, &llm.GeminiGenerator{}, gen)

	_, err = NewGenerator(ctx, config.LLMConfig{Backend: "bogus"})
	require.Error(t, err)
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, Options{})
	require.Error(t, err)
}
