package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestContext_IsEmpty(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		want bool
	}{
		{name: "empty context", ctx: Context{}, want: true},
		{name: "with post only", ctx: Context{PostID: "p_123"}, want: false},
		{name: "with quote only", ctx: Context{QuoteID: "q_123"}, want: false},
		{name: "with both", ctx: Context{PostID: "p_123", QuoteID: "q_123"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ctx.IsEmpty(); got != tt.want {
				t.Errorf("Context.IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContext_String(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		want string
	}{
		{name: "empty", ctx: Context{}, want: "(no context set)"},
		{name: "post with preview", ctx: Context{PostID: "0123456789ab", PostText: "hello"}, want: `post:01234567 "hello"`},
		{name: "quote only", ctx: Context{QuoteID: "q1"}, want: "quote:q1"},
		{name: "both", ctx: Context{PostID: "p1", QuoteID: "q1"}, want: "post:p1 quote:q1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ctx.String(); got != tt.want {
				t.Errorf("Context.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContext_SetPostTruncatesPreview(t *testing.T) {
	ctx := &Context{}
	ctx.SetPost("p1", "a very   long post that keeps going well past the preview limit")
	if got := []rune(ctx.PostText); len(got) != 32 {
		t.Fatalf("preview length = %d, want 32", len(got))
	}
	if ctx.UpdatedAt.IsZero() {
		t.Fatal("UpdatedAt not set")
	}
}

func TestContext_Resolve(t *testing.T) {
	ctx := &Context{}
	if _, err := ctx.ResolvePost(""); err == nil {
		t.Fatal("expected error without remembered post")
	}
	if _, err := ctx.ResolveQuote(""); err == nil {
		t.Fatal("expected error without remembered quote")
	}

	ctx.SetPost("p1", "hi")
	ctx.SetQuote("q1")
	if id, err := ctx.ResolvePost(""); err != nil || id != "p1" {
		t.Fatalf("ResolvePost(\"\") = %q, %v", id, err)
	}
	if id, err := ctx.ResolvePost("p2"); err != nil || id != "p2" {
		t.Fatalf("explicit id ignored: %q, %v", id, err)
	}
	if id, err := ctx.ResolveQuote(""); err != nil || id != "q1" {
		t.Fatalf("ResolveQuote(\"\") = %q, %v", id, err)
	}
}

func TestContextStore_SaveLoad(t *testing.T) {
	store := NewContextStore(filepath.Join(t.TempDir(), "nested", "context.yaml"))

	ctx := &Context{}
	ctx.SetPost("p1", "first post")
	ctx.SetQuote("q1")
	if err := store.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.PostID != "p1" || loaded.PostText != "first post" || loaded.QuoteID != "q1" {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestContextStore_LoadEmpty(t *testing.T) {
	store := NewContextStore(filepath.Join(t.TempDir(), "context.yaml"))

	ctx, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ctx.IsEmpty() {
		t.Fatalf("expected empty context, got %+v", ctx)
	}
}

func TestContextStore_Update(t *testing.T) {
	store := NewContextStore(filepath.Join(t.TempDir(), "context.yaml"))

	if err := store.Update(func(c *Context) { c.SetPost("p1", "x") }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := store.Update(func(c *Context) { c.SetQuote("q1") }); err != nil {
		t.Fatalf("Update: %v", err)
	}

	ctx, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ctx.PostID != "p1" || ctx.QuoteID != "q1" {
		t.Fatalf("updates not merged: %+v", ctx)
	}
}

func TestContextStore_Clear(t *testing.T) {
	contextPath := filepath.Join(t.TempDir(), "context.yaml")
	store := NewContextStore(contextPath)

	if err := store.Save(&Context{PostID: "p1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(contextPath); !os.IsNotExist(err) {
		t.Fatalf("context file still exists: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}

func TestContextStore_DefaultPath(t *testing.T) {
	store := NewContextStore("")
	if filepath.Base(store.Path()) != "context.yaml" {
		t.Fatalf("unexpected default path %q", store.Path())
	}
	if filepath.Base(filepath.Dir(store.Path())) != "cheerfeed" {
		t.Fatalf("unexpected default dir %q", store.Path())
	}
}
