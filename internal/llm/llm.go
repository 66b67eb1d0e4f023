// Package llm is the boundary to the text generator that invents replies
// and quote-repost comments.
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/tOgg1/cheerfeed/internal/models"
)

var (
	// ErrUnavailable means the generator is unusable as configured, for
	// example because the API key is missing or rejected.
	ErrUnavailable = errors.New("generation service unavailable")

	// ErrTransport means one request failed in transit or returned an
	// unreadable answer. The next request may succeed.
	ErrTransport = errors.New("generation request failed")
)

// GeneratedReply is one reply invented by the generator.
type GeneratedReply struct {
	Username  string `json:"username"`
	ReplyText string `json:"replyText"`
}

// GeneratedQuoteComment is the commentary of a generated quote-repost.
type GeneratedQuoteComment struct {
	Username    string `json:"username"`
	CommentText string `json:"commentText"`
}

// ReplyRequest asks for replies to a text.
type ReplyRequest struct {
	// PostText is the text being replied to.
	PostText string `json:"postText"`

	// ReplyingAs is the persona that must answer. Nil asks for a batch of
	// fresh personas.
	ReplyingAs *models.UserProfile `json:"replyingAsUser,omitempty"`

	// PastUserPostTexts are recent posts of the human user, newest first.
	PastUserPostTexts []string `json:"pastUserPostTexts,omitempty"`

	// MainUserName is the display name of the human user.
	MainUserName string `json:"mainUserName,omitempty"`
}

// QuoteRequest asks for a quote-repost comment on a post.
type QuoteRequest struct {
	OriginalPostText string `json:"originalPostText"`
	MainUserName     string `json:"mainUserName,omitempty"`
}

// Generator produces replies and quote comments.
//
// GenerateReplies returns ErrUnavailable when the service cannot be used
// at all, an empty slice when nothing was generated, and an error wrapping
// ErrTransport when a single request failed.
//
// GenerateQuoteComment returns a nil comment when there is nothing to
// show; the error explains why.
type Generator interface {
	GenerateReplies(ctx context.Context, req ReplyRequest) ([]GeneratedReply, error)
	GenerateQuoteComment(ctx context.Context, req QuoteRequest) (*GeneratedQuoteComment, error)
}

// cleanReplies drops entries without a name or text.
func cleanReplies(replies []GeneratedReply) []GeneratedReply {
	out := make([]GeneratedReply, 0, len(replies))
	for _, r := range replies {
		r.Username = strings.TrimSpace(r.Username)
		r.ReplyText = strings.TrimSpace(r.ReplyText)
		if r.Username == "" || r.ReplyText == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// cleanQuote returns nil for a comment without a name or text.
func cleanQuote(c *GeneratedQuoteComment) *GeneratedQuoteComment {
	if c == nil {
		return nil
	}
	out := GeneratedQuoteComment{
		Username:    strings.TrimSpace(c.Username),
		CommentText: strings.TrimSpace(c.CommentText),
	}
	if out.Username == "" || out.CommentText == "" {
		return nil
	}
	return &out
}

// mentionsAPIKey reports whether an upstream error message blames the key.
func mentionsAPIKey(message string) bool {
	return strings.Contains(strings.ToLower(message), "api key")
}
