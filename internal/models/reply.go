package models

import (
	"encoding/json"
	"slices"
	"strings"
)

// Reply is one node of a reply forest. Children is never nil.
type Reply struct {
	ID        string      `json:"id"`
	User      UserProfile `json:"user"`
	Text      string      `json:"text"`
	Timestamp int64       `json:"timestamp"`
	Likes     int         `json:"likes"`
	Children  []*Reply    `json:"children"`

	IsGeneratingChildren    bool   `json:"isGeneratingChildren,omitempty"`
	ErrorGeneratingChildren string `json:"errorGeneratingChildren,omitempty"`
	ShowReplyInput          bool   `json:"showReplyInput,omitempty"`
}

// NewReply builds a reply with an empty child list and zero likes.
func NewReply(id string, user UserProfile, text string, timestamp int64) *Reply {
	return &Reply{
		ID:        id,
		User:      user,
		Text:      text,
		Timestamp: timestamp,
		Children:  []*Reply{},
	}
}

// NodeID implements replytree.Node.
func (r *Reply) NodeID() string { return r.ID }

// NodeChildren implements replytree.Node.
func (r *Reply) NodeChildren() []*Reply { return r.Children }

// WithChildren implements replytree.Node.
func (r *Reply) WithChildren(children []*Reply) *Reply {
	cp := r.Clone()
	cp.Children = children
	return cp
}

// Clone returns a shallow copy. The child slice is shared; use
// WithChild to extend it without aliasing.
func (r *Reply) Clone() *Reply {
	cp := *r
	return &cp
}

// WithChild returns a copy of r with child appended.
func (r *Reply) WithChild(child *Reply) *Reply {
	cp := r.Clone()
	cp.Children = append(slices.Clip(r.Children), child)
	return cp
}

// UnmarshalJSON restores the non-nil children invariant for older payloads.
func (r *Reply) UnmarshalJSON(data []byte) error {
	type alias Reply
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*r = Reply(decoded)
	if r.Children == nil {
		r.Children = []*Reply{}
	}
	return nil
}

// Validate checks the reply and all of its descendants.
func (r *Reply) Validate() error {
	v := &ValidationErrors{}
	if strings.TrimSpace(r.ID) == "" {
		v.Add("id", ErrMissingID)
	}
	v.Add("user", r.User.Validate())
	if r.Likes < 0 {
		v.Add("likes", ErrNegativeLikes)
	}
	for i, child := range r.Children {
		if child == nil {
			v.AddMessage("children", "nil child")
			continue
		}
		v.AddIndexed("children", i, child.Validate())
	}
	return v.Err()
}
