package models

import (
	"encoding/json"
	"strings"
)

// ItemType discriminates timeline entries.
type ItemType string

const (
	ItemTypePost         ItemType = "post"
	ItemTypeQuoteRetweet ItemType = "quoteRetweet"
)

// TimelineItem is a Post or a QuoteRetweet.
type TimelineItem interface {
	ItemID() string
	ItemType() ItemType
	ItemTimestamp() int64
	Author() UserProfile
	ReplySet() ReplySet
	// WithReplySet returns a copy of the item carrying replies.
	WithReplySet(replies ReplySet) TimelineItem
	Validate() error
}

// Post is a top-level entry written by the main user.
type Post struct {
	Type      ItemType    `json:"type"`
	ID        string      `json:"id"`
	User      UserProfile `json:"user"`
	Text      string      `json:"text"`
	Timestamp int64       `json:"timestamp"`
	Replies   ReplySet    `json:"-"`

	IsGeneratingReplies        bool   `json:"isGeneratingReplies"`
	ErrorGeneratingReplies     string `json:"errorGeneratingReplies,omitempty"`
	IsGeneratingMoreReplies    bool   `json:"isGeneratingMoreReplies,omitempty"`
	ErrorGeneratingMoreReplies string `json:"errorGeneratingMoreReplies,omitempty"`
	CanLoadMore                bool   `json:"canLoadMore,omitempty"`
}

// NewPost builds an empty post shell.
func NewPost(id string, user UserProfile, text string, timestamp int64) *Post {
	return &Post{
		Type:      ItemTypePost,
		ID:        id,
		User:      user,
		Text:      text,
		Timestamp: timestamp,
	}
}

func (p *Post) ItemID() string       { return p.ID }
func (p *Post) ItemType() ItemType   { return ItemTypePost }
func (p *Post) ItemTimestamp() int64 { return p.Timestamp }
func (p *Post) Author() UserProfile  { return p.User }
func (p *Post) ReplySet() ReplySet   { return p.Replies }

func (p *Post) WithReplySet(replies ReplySet) TimelineItem {
	cp := p.Clone()
	cp.Replies = replies
	return cp
}

// Clone returns a shallow copy of the post.
func (p *Post) Clone() *Post {
	cp := *p
	return &cp
}

// Settled reports whether no reply round is in flight.
func (p *Post) Settled() bool {
	return !p.IsGeneratingReplies && !p.IsGeneratingMoreReplies
}

// Validate checks the post's id and author. Replies are checked when the
// post is decoded.
func (p *Post) Validate() error {
	v := &ValidationErrors{}
	if strings.TrimSpace(p.ID) == "" {
		v.Add("id", ErrMissingID)
	}
	v.Add("user", p.User.Validate())
	return v.Err()
}

// MarshalJSON writes the reply set as allReplies/replies arrays.
func (p Post) MarshalJSON() ([]byte, error) {
	type alias Post
	a := alias(p)
	a.Type = ItemTypePost
	return json.Marshal(struct {
		alias
		replyFields
	}{a, p.Replies.fields()})
}

// UnmarshalJSON reads the allReplies/replies arrays into the reply set.
func (p *Post) UnmarshalJSON(data []byte) error {
	type alias Post
	var decoded struct {
		alias
		replyFields
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	if err := decoded.replyFields.validate(); err != nil {
		return err
	}
	*p = Post(decoded.alias)
	p.Replies = decoded.replyFields.set()
	return nil
}
