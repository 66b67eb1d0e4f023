package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Context remembers what the CLI last touched so follow-up commands can
// omit ids.
type Context struct {
	// PostID is the post created or expanded last.
	PostID string `yaml:"post,omitempty" json:"post,omitempty"`
	// PostText is a short preview of that post (for display).
	PostText string `yaml:"post_text,omitempty" json:"post_text,omitempty"`
	// QuoteID is the quote-repost replied to last.
	QuoteID string `yaml:"quote,omitempty" json:"quote,omitempty"`
	// UpdatedAt is when the context was last modified.
	UpdatedAt time.Time `yaml:"updated_at,omitempty" json:"updated_at,omitzero"`
}

// IsEmpty returns true if no context is set.
func (c *Context) IsEmpty() bool {
	return c.PostID == "" && c.QuoteID == ""
}

// HasPost returns true if a post is remembered.
func (c *Context) HasPost() bool {
	return c.PostID != ""
}

// HasQuote returns true if a quote-repost is remembered.
func (c *Context) HasQuote() bool {
	return c.QuoteID != ""
}

// Clear removes all context.
func (c *Context) Clear() {
	c.PostID = ""
	c.PostText = ""
	c.QuoteID = ""
	c.UpdatedAt = time.Now()
}

// SetPost remembers a post.
func (c *Context) SetPost(id, text string) {
	c.PostID = id
	c.PostText = preview(text, 32)
	c.UpdatedAt = time.Now()
}

// SetQuote remembers a quote-repost.
func (c *Context) SetQuote(id string) {
	c.QuoteID = id
	c.UpdatedAt = time.Now()
}

// ResolvePost returns id, or the remembered post when id is empty.
func (c *Context) ResolvePost(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	if !c.HasPost() {
		return "", fmt.Errorf("no post id given and none remembered")
	}
	return c.PostID, nil
}

// ResolveQuote returns id, or the remembered quote-repost when id is empty.
func (c *Context) ResolveQuote(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	if !c.HasQuote() {
		return "", fmt.Errorf("no quote id given and none remembered")
	}
	return c.QuoteID, nil
}

// String returns a human-readable representation of the context.
func (c *Context) String() string {
	if c.IsEmpty() {
		return "(no context set)"
	}
	var parts []string
	if c.HasPost() {
		label := shortID(c.PostID)
		if c.PostText != "" {
			label += fmt.Sprintf(" %q", c.PostText)
		}
		parts = append(parts, "post:"+label)
	}
	if c.HasQuote() {
		parts = append(parts, "quote:"+shortID(c.QuoteID))
	}
	return strings.Join(parts, " ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n-1]) + "…"
}

// ContextStore manages loading and saving context.
type ContextStore struct {
	path string
	mu   sync.RWMutex
}

// NewContextStore creates a new context store.
// If path is empty, uses the default path (~/.config/cheerfeed/context.yaml).
func NewContextStore(path string) *ContextStore {
	if path == "" {
		homeDir, _ := os.UserHomeDir()
		path = filepath.Join(homeDir, ".config", "cheerfeed", "context.yaml")
	}
	return &ContextStore{path: path}
}

// Path returns the context file path.
func (s *ContextStore) Path() string {
	return s.path
}

// Load reads the context from disk.
// Returns an empty context if the file doesn't exist.
func (s *ContextStore) Load() (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := &Context{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ctx, nil
		}
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}

	if err := yaml.Unmarshal(data, ctx); err != nil {
		return nil, fmt.Errorf("failed to parse context file: %w", err)
	}

	return ctx, nil
}

// Save writes the context to disk.
func (s *ContextStore) Save(ctx *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create context directory: %w", err)
	}

	data, err := yaml.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("failed to serialize context: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write context file: %w", err)
	}

	return nil
}

// Update loads the context, applies fn and saves it.
func (s *ContextStore) Update(fn func(*Context)) error {
	ctx, err := s.Load()
	if err != nil {
		return err
	}
	fn(ctx)
	return s.Save(ctx)
}

// Clear removes the context file.
func (s *ContextStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove context file: %w", err)
	}
	return nil
}
