package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tOgg1/cheerfeed/internal/models"
)

const maxSuggestions = 5

func shortID(id string) string {
	const limit = 8
	if len(id) <= limit {
		return id
	}
	return id[:limit]
}

// findItem resolves a full id or a unique id prefix against the timeline.
func findItem(items models.Timeline, idOrPrefix string) (models.TimelineItem, error) {
	query := strings.TrimSpace(idOrPrefix)
	if query == "" {
		return nil, errors.New("item ID required")
	}

	var matches []models.TimelineItem
	for _, item := range items {
		if item.ItemID() == query {
			return item, nil
		}
		if strings.HasPrefix(item.ItemID(), query) {
			matches = append(matches, item)
		}
	}
	switch {
	case len(matches) == 1:
		return matches[0], nil
	case len(matches) > 1:
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.ItemID())
		}
		return nil, fmt.Errorf("item '%s' is ambiguous; matches: %s (use a longer prefix or full ID)", query, formatMatches(ids))
	case len(items) == 0:
		return nil, fmt.Errorf("item '%s' not found (the timeline is empty)", query)
	default:
		return nil, fmt.Errorf("item '%s' not found. Example input: '%s'", query, shortID(items[0].ItemID()))
	}
}

// findPost resolves an item that must be a post.
func findPost(items models.Timeline, idOrPrefix string) (*models.Post, error) {
	item, err := findItem(items, idOrPrefix)
	if err != nil {
		return nil, err
	}
	post, ok := item.(*models.Post)
	if !ok {
		return nil, fmt.Errorf("'%s' is a quote-repost, not a post", idOrPrefix)
	}
	return post, nil
}

// findQuote resolves an item that must be a quote-repost.
func findQuote(items models.Timeline, idOrPrefix string) (*models.QuoteRetweet, error) {
	item, err := findItem(items, idOrPrefix)
	if err != nil {
		return nil, err
	}
	qr, ok := item.(*models.QuoteRetweet)
	if !ok {
		return nil, fmt.Errorf("'%s' is a post, not a quote-repost", idOrPrefix)
	}
	return qr, nil
}

// findReply resolves a reply anywhere in the item's reply forest.
func findReply(item models.TimelineItem, idOrPrefix string) (*models.Reply, error) {
	query := strings.TrimSpace(idOrPrefix)
	if query == "" {
		return nil, errors.New("reply ID required")
	}
	if exact, ok := item.ReplySet().Find(query); ok {
		return exact, nil
	}

	var matches []*models.Reply
	var walk func([]*models.Reply)
	walk = func(replies []*models.Reply) {
		for _, r := range replies {
			if strings.HasPrefix(r.ID, query) {
				matches = append(matches, r)
			}
			walk(r.Children)
		}
	}
	walk(item.ReplySet().All())

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, fmt.Errorf("reply '%s' not found under item '%s'", query, shortID(item.ItemID()))
	default:
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.ID)
		}
		return nil, fmt.Errorf("reply '%s' is ambiguous; matches: %s (use a longer prefix or full ID)", query, formatMatches(ids))
	}
}

func formatMatches(ids []string) string {
	sort.Strings(ids)
	if len(ids) > maxSuggestions {
		extra := len(ids) - maxSuggestions
		ids = append(ids[:maxSuggestions:maxSuggestions], fmt.Sprintf("+%d more", extra))
	}
	return strings.Join(ids, ", ")
}
