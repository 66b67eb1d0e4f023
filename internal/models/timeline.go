package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Timeline is the ordered list of feed entries, newest first.
type Timeline []TimelineItem

// MarshalJSON always writes an array, never null.
func (t Timeline) MarshalJSON() ([]byte, error) {
	items := []TimelineItem(t)
	if items == nil {
		items = []TimelineItem{}
	}
	return json.Marshal(items)
}

// UnmarshalJSON decodes entries by their "type" discriminator.
func (t *Timeline) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Timeline, 0, len(raw))
	for i, entry := range raw {
		item, err := decodeItem(entry)
		if err != nil {
			return fmt.Errorf("timeline[%d]: %w", i, err)
		}
		out = append(out, item)
	}
	*t = out
	return nil
}

func decodeItem(data json.RawMessage) (TimelineItem, error) {
	var head struct {
		Type ItemType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case ItemTypePost:
		var p Post
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case ItemTypeQuoteRetweet:
		var q QuoteRetweet
		if err := json.Unmarshal(data, &q); err != nil {
			return nil, err
		}
		return &q, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownItemType, head.Type)
	}
}

// DecodeTimeline parses and validates a persisted snapshot. Any invalid
// entry rejects the whole snapshot.
func DecodeTimeline(data []byte) (Timeline, error) {
	var t Timeline
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks every entry and rejects duplicate ids.
func (t Timeline) Validate() error {
	v := &ValidationErrors{}
	seen := make(map[string]bool, len(t))
	for i, item := range t {
		if item == nil {
			v.AddMessage(fmt.Sprintf("timeline[%d]", i), "nil item")
			continue
		}
		v.AddIndexed("timeline", i, item.Validate())
		if seen[item.ItemID()] {
			v.AddMessage(fmt.Sprintf("timeline[%d].id", i), "duplicate id "+item.ItemID())
		}
		seen[item.ItemID()] = true
	}
	return v.Err()
}

// Index returns the position of the item with the given id, or -1.
func (t Timeline) Index(id string) int {
	for i, item := range t {
		if item.ItemID() == id {
			return i
		}
	}
	return -1
}

// SortNewestFirst orders entries by timestamp, newest first. Ties keep
// their relative order.
func (t Timeline) SortNewestFirst() {
	sort.SliceStable(t, func(i, j int) bool {
		return t[i].ItemTimestamp() > t[j].ItemTimestamp()
	})
}
