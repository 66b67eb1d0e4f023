package models

import (
	"encoding/json"
	"strings"
)

// QuoteRetweet is an AI-authored commentary that embeds a snapshot of a
// post. It is created complete, so it carries no generation state of its
// own beyond the direct-reply input toggle.
type QuoteRetweet struct {
	Type       ItemType    `json:"type"`
	ID         string      `json:"id"`
	User       UserProfile `json:"user"`
	Text       string      `json:"text"`
	Timestamp  int64       `json:"timestamp"`
	QuotedPost Post        `json:"quotedPost"`
	Replies    ReplySet    `json:"-"`

	ShowDirectReplyInput bool `json:"showDirectReplyInput,omitempty"`
}

func (q *QuoteRetweet) ItemID() string       { return q.ID }
func (q *QuoteRetweet) ItemType() ItemType   { return ItemTypeQuoteRetweet }
func (q *QuoteRetweet) ItemTimestamp() int64 { return q.Timestamp }
func (q *QuoteRetweet) Author() UserProfile  { return q.User }
func (q *QuoteRetweet) ReplySet() ReplySet   { return q.Replies }

func (q *QuoteRetweet) WithReplySet(replies ReplySet) TimelineItem {
	cp := q.Clone()
	cp.Replies = replies
	return cp
}

// Clone returns a shallow copy of the quote-repost.
func (q *QuoteRetweet) Clone() *QuoteRetweet {
	cp := *q
	return &cp
}

// Validate checks the quote-repost and its quoted snapshot.
func (q *QuoteRetweet) Validate() error {
	v := &ValidationErrors{}
	if strings.TrimSpace(q.ID) == "" {
		v.Add("id", ErrMissingID)
	}
	v.Add("user", q.User.Validate())
	v.Add("quotedPost", q.QuotedPost.Validate())
	return v.Err()
}

func (q QuoteRetweet) MarshalJSON() ([]byte, error) {
	type alias QuoteRetweet
	a := alias(q)
	a.Type = ItemTypeQuoteRetweet
	return json.Marshal(struct {
		alias
		replyFields
	}{a, q.Replies.fields()})
}

func (q *QuoteRetweet) UnmarshalJSON(data []byte) error {
	type alias QuoteRetweet
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
	*q = QuoteRetweet(decoded.alias)
	q.Replies = decoded.replyFields.set()
	return nil
}
