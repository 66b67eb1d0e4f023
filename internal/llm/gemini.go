package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/tOgg1/cheerfeed/internal/logging"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

const replyBatchPrompt = `You write replies for a cheerful social feed where every reply is kind and encouraging.

The user %s just posted:
"""
%s
"""
%s
Invent between 3 and 6 different people who reply to this post. Give each one a short, natural display name and a reply of one or two sentences. Vary their tone: some playful, some gentle, some enthusiastic. Never criticise the user.

Answer with a JSON array only, in this shape:
[{"username": "display name", "replyText": "reply"}]`

const replyAsPersonaPrompt = `You write replies for a cheerful social feed where every reply is kind and encouraging.

You are %s. Earlier in this thread you said:
"""
%s
"""
Now someone replied to you:
"""
%s
"""
%s
Answer in character with one short, warm reply of one or two sentences.

Answer with a JSON array holding exactly one element:
[{"username": "%s", "replyText": "reply"}]`

const quotePrompt = `You write quote-reposts for a cheerful social feed.

The user %s posted:
"""
%s
"""
Invent one person who shares this post with a short, supportive comment of one or two sentences. Give them a natural display name.

Answer with a JSON object only:
{"username": "display name", "commentText": "comment"}`

// GeminiConfig configures a GeminiGenerator.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// GeminiGenerator generates text with the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	logger zerolog.Logger
}

// NewGeminiGenerator creates a generator. Without an API key every call
// fails with ErrUnavailable.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	g := &GeminiGenerator{
		model:  cfg.Model,
		logger: logging.Component("llm.gemini"),
	}
	if g.model == "" {
		g.model = DefaultGeminiModel
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		g.logger.Warn().Msg("no Gemini API key configured")
		return g, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	g.client = client
	return g, nil
}

// GenerateReplies implements Generator.
func (g *GeminiGenerator) GenerateReplies(ctx context.Context, req ReplyRequest) ([]GeneratedReply, error) {
	text, err := g.generate(ctx, buildReplyPrompt(req))
	if err != nil {
		return nil, err
	}

	var replies []GeneratedReply
	if err := json.Unmarshal([]byte(cleanJSON(text)), &replies); err != nil {
		g.logger.Debug().Str("text", text).Msg("unparseable reply batch")
		return nil, fmt.Errorf("%w: parse replies: %v", ErrTransport, err)
	}
	replies = cleanReplies(replies)
	if req.ReplyingAs != nil {
		for i := range replies {
			replies[i].Username = req.ReplyingAs.Name
		}
		if len(replies) > 1 {
			replies = replies[:1]
		}
	}
	return replies, nil
}

// GenerateQuoteComment implements Generator.
func (g *GeminiGenerator) GenerateQuoteComment(ctx context.Context, req QuoteRequest) (*GeneratedQuoteComment, error) {
	text, err := g.generate(ctx, fmt.Sprintf(quotePrompt, displayName(req.MainUserName), req.OriginalPostText))
	if err != nil {
		return nil, err
	}

	var comment *GeneratedQuoteComment
	if err := json.Unmarshal([]byte(cleanJSON(text)), &comment); err != nil {
		return nil, fmt.Errorf("%w: parse quote comment: %v", ErrTransport, err)
	}
	return cleanQuote(comment), nil
}

func (g *GeminiGenerator) generate(ctx context.Context, prompt string) (string, error) {
	if g.client == nil {
		return "", ErrUnavailable
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		if mentionsAPIKey(err.Error()) {
			g.logger.Warn().Str("error", logging.Redact(err.Error())).Msg("Gemini rejected the API key")
			return "", ErrUnavailable
		}
		return "", fmt.Errorf("%w: %s", ErrTransport, logging.Redact(err.Error()))
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil ||
		len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty candidate list", ErrTransport)
	}

	var b strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}

func buildReplyPrompt(req ReplyRequest) string {
	recent := ""
	if len(req.PastUserPostTexts) > 0 {
		var b strings.Builder
		b.WriteString("\nFor context, their recent posts were:\n")
		for _, p := range req.PastUserPostTexts {
			b.WriteString("- ")
			b.WriteString(p)
			b.WriteString("\n")
		}
		recent = b.String()
	}

	if req.ReplyingAs != nil {
		persona := req.ReplyingAs
		earlier := persona.InitialReplyText
		if earlier == "" {
			earlier = "(nothing yet)"
		}
		return fmt.Sprintf(replyAsPersonaPrompt,
			persona.Name, earlier, req.PostText, recent, persona.Name)
	}
	return fmt.Sprintf(replyBatchPrompt, displayName(req.MainUserName), req.PostText, recent)
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "someone"
	}
	return fmt.Sprintf("%q", name)
}

// cleanJSON strips markdown code fences around a JSON answer.
func cleanJSON(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
