package models

import (
	"slices"

	"github.com/tOgg1/cheerfeed/internal/replytree"
)

// ReplySet is the top-level reply list of a timeline item, modelled as an
// append-only queue with a reveal cursor. The visible replies are always
// the first Revealed() entries of All().
//
// ReplySet is a value type. Every method that changes it returns a new set
// and never writes into a slice another set can observe.
type ReplySet struct {
	items    []*Reply
	revealed int
}

// NewReplySet builds a set from items with the first revealed entries visible.
func NewReplySet(items []*Reply, revealed int) ReplySet {
	return ReplySet{items: items, revealed: clampInt(revealed, 0, len(items))}
}

// All returns every fetched reply in arrival order.
func (s ReplySet) All() []*Reply {
	return slices.Clip(s.items)
}

// Visible returns the revealed prefix.
func (s ReplySet) Visible() []*Reply {
	return s.items[:s.revealed:s.revealed]
}

// Len returns the number of fetched replies.
func (s ReplySet) Len() int { return len(s.items) }

// Revealed returns the number of visible replies.
func (s ReplySet) Revealed() int { return s.revealed }

// Backlog returns how many fetched replies are still hidden.
func (s ReplySet) Backlog() int { return len(s.items) - s.revealed }

// Append adds replies at the end without revealing them.
func (s ReplySet) Append(replies ...*Reply) ReplySet {
	if len(replies) == 0 {
		return s
	}
	return ReplySet{items: append(slices.Clip(s.items), replies...), revealed: s.revealed}
}

// RevealNext makes one more reply visible. It reports false when nothing
// was hidden.
func (s ReplySet) RevealNext() (ReplySet, bool) {
	if s.revealed >= len(s.items) {
		return s, false
	}
	s.revealed++
	return s, true
}

// RevealAll makes every fetched reply visible.
func (s ReplySet) RevealAll() ReplySet {
	s.revealed = len(s.items)
	return s
}

// Find searches the whole forest, hidden replies included.
func (s ReplySet) Find(id string) (*Reply, bool) {
	return replytree.Find(s.items, id)
}

// Update replaces the reply with the given id anywhere in the forest.
// The reveal cursor is unaffected, so the visible projection follows the
// update automatically.
func (s ReplySet) Update(id string, fn func(*Reply) *Reply) (ReplySet, bool) {
	items, ok := replytree.UpdateByID(s.items, id, fn)
	if !ok {
		return s, false
	}
	return ReplySet{items: items, revealed: s.revealed}, true
}

// MapAll applies fn to every node of the forest.
func (s ReplySet) MapAll(fn func(*Reply) *Reply) ReplySet {
	return ReplySet{items: replytree.Map(s.items, fn), revealed: s.revealed}
}

// Count returns the number of replies in the forest, nested ones included.
func (s ReplySet) Count() int {
	return replytree.Count(s.items)
}

// replyFields is the external two-array form of a ReplySet.
type replyFields struct {
	AllReplies []*Reply `json:"allReplies"`
	Replies    []*Reply `json:"replies"`
}

func (s ReplySet) fields() replyFields {
	all := s.items
	if all == nil {
		all = []*Reply{}
	}
	return replyFields{AllReplies: all, Replies: all[:s.revealed]}
}

func (f replyFields) set() ReplySet {
	if len(f.AllReplies) == 0 {
		return ReplySet{}
	}
	return NewReplySet(f.AllReplies, len(f.Replies))
}

// validate checks that the visible list was a prefix of the full list.
func (f replyFields) validate() error {
	v := &ValidationErrors{}
	if len(f.Replies) > len(f.AllReplies) {
		v.Add("replies", ErrVisibleNotPrefix)
		return v.Err()
	}
	for i, visible := range f.Replies {
		if visible == nil || f.AllReplies[i] == nil || visible.ID != f.AllReplies[i].ID {
			v.AddIndexed("replies", i, ErrVisibleNotPrefix)
			return v.Err()
		}
	}
	for i, reply := range f.AllReplies {
		if reply == nil {
			v.AddMessage("allReplies", "nil reply")
			continue
		}
		v.AddIndexed("allReplies", i, reply.Validate())
	}
	return v.Err()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
