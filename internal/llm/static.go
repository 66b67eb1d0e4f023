package llm

import (
	"context"
	"math/rand/v2"
	"sync"
)

// Funcs adapts plain functions to Generator. A nil function behaves as if
// nothing was generated.
type Funcs struct {
	Replies func(ctx context.Context, req ReplyRequest) ([]GeneratedReply, error)
	Quote   func(ctx context.Context, req QuoteRequest) (*GeneratedQuoteComment, error)
}

// GenerateReplies implements Generator.
func (f Funcs) GenerateReplies(ctx context.Context, req ReplyRequest) ([]GeneratedReply, error) {
	if f.Replies == nil {
		return []GeneratedReply{}, nil
	}
	return f.Replies(ctx, req)
}

// GenerateQuoteComment implements Generator.
func (f Funcs) GenerateQuoteComment(ctx context.Context, req QuoteRequest) (*GeneratedQuoteComment, error) {
	if f.Quote == nil {
		return nil, nil
	}
	return f.Quote(ctx, req)
}

// Static returns the same answers every time.
type Static struct {
	Replies  []GeneratedReply
	Comment  *GeneratedQuoteComment
	ReplyErr error
	QuoteErr error
}

// GenerateReplies implements Generator.
func (s Static) GenerateReplies(_ context.Context, req ReplyRequest) ([]GeneratedReply, error) {
	if s.ReplyErr != nil {
		return nil, s.ReplyErr
	}
	out := append([]GeneratedReply{}, s.Replies...)
	if req.ReplyingAs != nil && len(out) > 0 {
		out = out[:1]
		out[0].Username = req.ReplyingAs.Name
	}
	return out, nil
}

// GenerateQuoteComment implements Generator.
func (s Static) GenerateQuoteComment(context.Context, QuoteRequest) (*GeneratedQuoteComment, error) {
	if s.QuoteErr != nil {
		return nil, s.QuoteErr
	}
	if s.Comment == nil {
		return nil, nil
	}
	c := *s.Comment
	return &c, nil
}

var (
	demoNames = []string{
		"Sunny Side", "Mochi", "Kind Neighbor", "Pocket Coach", "ただすめん",
		"ケンタ兄さん", "Night Owl", "Tea Break", "Lucky Clover", "Paper Crane",
	}
	demoReplies = []string{
		"This made my day, thank you for sharing!",
		"You are doing better than you think.",
		"Love this energy, keep it coming!",
		"Honestly inspiring. Proud of you!",
		"Sending you a big virtual high five.",
		"I needed to read this today.",
		"Small steps still count. You've got this!",
		"That's wonderful news!",
	}
	demoFollowUps = []string{
		"Right? I'm cheering for you!",
		"Anytime! Tell me how it goes.",
		"You deserve all the good things.",
		"Haha, exactly. Keep shining!",
	}
	demoQuotes = []string{
		"Everyone needs to see this. So much good energy!",
		"Sharing because this deserves more love.",
		"This is the kind of post I come here for.",
	}
)

// Demo invents replies locally without calling any service.
type Demo struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDemo creates a Demo generator. A nil src seeds randomly.
func NewDemo(src rand.Source) *Demo {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Demo{rng: rand.New(src)}
}

// GenerateReplies implements Generator.
func (d *Demo) GenerateReplies(ctx context.Context, req ReplyRequest) ([]GeneratedReply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if req.ReplyingAs != nil {
		return []GeneratedReply{{
			Username:  req.ReplyingAs.Name,
			ReplyText: demoFollowUps[d.rng.IntN(len(demoFollowUps))],
		}}, nil
	}

	n := 3 + d.rng.IntN(3)
	names := d.rng.Perm(len(demoNames))
	out := make([]GeneratedReply, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, GeneratedReply{
			Username:  demoNames[names[i]],
			ReplyText: demoReplies[d.rng.IntN(len(demoReplies))],
		})
	}
	return out, nil
}

// GenerateQuoteComment implements Generator.
func (d *Demo) GenerateQuoteComment(ctx context.Context, _ QuoteRequest) (*GeneratedQuoteComment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return &GeneratedQuoteComment{
		Username:    demoNames[d.rng.IntN(len(demoNames))],
		CommentText: demoQuotes[d.rng.IntN(len(demoQuotes))],
	}, nil
}
