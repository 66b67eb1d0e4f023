package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func persona(id string) UserProfile {
	return UserProfile{ID: id, Name: id, Username: "@" + id, AvatarURL: "https://example.com/" + id}
}

func samplePost() *Post {
	child := NewReply("r1c", persona("main-user"), "thanks!", 1003)
	r1 := NewReply("r1", persona("ai-1"), "nice!", 1001)
	r1.Children = []*Reply{child}
	r2 := NewReply("r2", persona("ai-2"), "great!", 1002)
	r3 := NewReply("r3", persona("ai-3"), "wow", 1003)

	p := NewPost("p1", persona(MainUserID), "hello", 1000)
	p.Replies = NewReplySet([]*Reply{r1, r2, r3}, 2)
	p.CanLoadMore = true
	return p
}

func TestReplySetRevealKeepsPrefix(t *testing.T) {
	set := samplePost().Replies
	require.Equal(t, 3, set.Len())
	require.Equal(t, 2, set.Revealed())
	require.Equal(t, 1, set.Backlog())

	next, ok := set.RevealNext()
	require.True(t, ok)
	require.Equal(t, 3, next.Revealed())
	require.Equal(t, next.All(), next.Visible())
	require.Equal(t, 2, set.Revealed(), "original set is unchanged")

	_, ok = next.RevealNext()
	require.False(t, ok)
}

func TestReplySetAppendDoesNotAlias(t *testing.T) {
	base := NewReplySet(make([]*Reply, 0, 8), 0)
	a := base.Append(NewReply("a", persona("x"), "a", 1))
	b := base.Append(NewReply("b", persona("y"), "b", 2))

	require.Equal(t, "a", a.All()[0].ID)
	require.Equal(t, "b", b.All()[0].ID)
	require.Equal(t, 0, a.Revealed())
	require.Equal(t, 1, a.RevealAll().Revealed())
}

func TestReplySetUpdateMirrorsVisible(t *testing.T) {
	set := samplePost().Replies

	updated, ok := set.Update("r1c", func(r *Reply) *Reply {
		cp := r.Clone()
		cp.ShowReplyInput = true
		return cp
	})
	require.True(t, ok)

	found, ok := updated.Find("r1c")
	require.True(t, ok)
	require.True(t, found.ShowReplyInput)
	require.True(t, updated.Visible()[0].Children[0].ShowReplyInput)
	require.Same(t, set.All()[1], updated.All()[1])

	orig, _ := set.Find("r1c")
	require.False(t, orig.ShowReplyInput)
}

func TestReplyWithChildDoesNotAlias(t *testing.T) {
	parent := NewReply("p", persona("x"), "p", 1)
	parent.Children = make([]*Reply, 0, 4)

	a := parent.WithChild(NewReply("a", persona("y"), "a", 2))
	b := parent.WithChild(NewReply("b", persona("y"), "b", 3))

	require.Len(t, parent.Children, 0)
	require.Equal(t, "a", a.Children[0].ID)
	require.Equal(t, "b", b.Children[0].ID)
}

func TestPostJSONShape(t *testing.T) {
	data, err := json.Marshal(samplePost())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Equal(t, "post", raw["type"])
	require.Len(t, raw["allReplies"], 3)
	require.Len(t, raw["replies"], 2)
	require.Equal(t, false, raw["isGeneratingReplies"])

	first := raw["allReplies"].([]any)[1].(map[string]any)
	require.Equal(t, []any{}, first["children"])
}

func TestTimelineRoundTrip(t *testing.T) {
	post := samplePost()
	quote := &QuoteRetweet{
		Type:       ItemTypeQuoteRetweet,
		ID:         "q1",
		User:       persona("ai-quote"),
		Text:       "so true",
		Timestamp:  1100,
		QuotedPost: *post.Clone(),
		Replies:    NewReplySet([]*Reply{NewReply("qr1", persona(MainUserID), "hi", 1200)}, 1),
	}
	original := Timeline{quote, post}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	decoded, err := DecodeTimeline(data)
	require.NoError(t, err)
	require.Equal(t, original, decoded)
}

func TestDecodeTimelineEmpty(t *testing.T) {
	data, err := json.Marshal(Timeline(nil))
	require.NoError(t, err)
	require.Equal(t, "[]", string(data))

	decoded, err := DecodeTimeline([]byte("null"))
	require.NoError(t, err)
	require.Empty(t, decoded)
}

func TestDecodeTimelineRejectsCorruptSnapshots(t *testing.T) {
	tests := []struct {
		name string
		data string
		is   error
	}{
		{name: "not json", data: `{oops`},
		{name: "not an array", data: `{"type":"post"}`},
		{name: "unknown type", data: `[{"type":"story","id":"x"}]`, is: ErrUnknownItemType},
		{name: "missing id", data: `[{"type":"post","id":"","user":{"id":"main-user"},"allReplies":[],"replies":[]}]`, is: ErrMissingID},
		{
			name: "visible not a prefix",
			data: `[{"type":"post","id":"p","user":{"id":"main-user"},
				"allReplies":[{"id":"a","user":{"id":"u"}},{"id":"b","user":{"id":"u"}}],
				"replies":[{"id":"b","user":{"id":"u"}}]}]`,
			is: ErrVisibleNotPrefix,
		},
		{
			name: "duplicate ids",
			data: `[{"type":"post","id":"p","user":{"id":"main-user"}},{"type":"post","id":"p","user":{"id":"main-user"}}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTimeline([]byte(tt.data))
			require.Error(t, err)
			if tt.is != nil {
				require.True(t, errors.Is(err, tt.is), "got %v", err)
			}
		})
	}
}

func TestTimelineSortNewestFirst(t *testing.T) {
	a := NewPost("a", persona(MainUserID), "a", 100)
	b := NewPost("b", persona(MainUserID), "b", 300)
	c := &QuoteRetweet{ID: "c", User: persona("q"), Timestamp: 200}

	tl := Timeline{a, b, c}
	tl.SortNewestFirst()

	ids := []string{}
	for _, item := range tl {
		ids = append(ids, item.ItemID())
	}
	require.Equal(t, []string{"b", "c", "a"}, ids)
	require.Equal(t, 2, tl.Index("a"))
	require.Equal(t, -1, tl.Index("zz"))
}

func TestPostValidateChecksIdentity(t *testing.T) {
	require.NoError(t, samplePost().Validate())

	p := samplePost()
	p.ID = " "
	require.ErrorIs(t, p.Validate(), ErrMissingID)

	// A reply forest that breaks the prefix rule is rejected on decode.
	var decoded Post
	err := json.Unmarshal([]byte(`{"type":"post","id":"p","user":{"id":"main-user"},
		"allReplies":[{"id":"a","user":{"id":"u"}}],"replies":[{"id":"b","user":{"id":"u"}}]}`), &decoded)
	require.ErrorIs(t, err, ErrVisibleNotPrefix)
}
