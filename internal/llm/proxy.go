package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/tOgg1/cheerfeed/internal/logging"
	"github.com/tOgg1/cheerfeed/internal/models"
)

// Proxy actions.
const (
	ActionGenerateReplies      = "generateReplies"
	ActionGenerateQuoteComment = "generateQuoteComment"
)

// DefaultProxyPath is where browser builds expect the proxy.
const DefaultProxyPath = "/.netlify/functions/gemini-proxy"

// maxResponseBytes bounds how much of a proxy answer is read.
const maxResponseBytes = 1 << 20

// proxyRequest is the wire form of both proxy actions.
type proxyRequest struct {
	Action            string              `json:"action"`
	PostText          string              `json:"postText,omitempty"`
	ReplyingAsUser    *models.UserProfile `json:"replyingAsUser,omitempty"`
	PastUserPostTexts []string            `json:"pastUserPostTexts,omitempty"`
	MainUserName      string              `json:"mainUserName,omitempty"`
	OriginalPostText  string              `json:"originalPostText,omitempty"`
}

type proxyError struct {
	Error string `json:"error"`
}

// ProxyConfig configures a ProxyClient.
type ProxyConfig struct {
	URL     string
	Timeout time.Duration

	// BreakerFailures consecutive failures open the circuit.
	BreakerFailures uint32

	// BreakerTimeout is how long the circuit stays open.
	BreakerTimeout time.Duration

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// ProxyClient talks to a generation proxy over HTTP.
type ProxyClient struct {
	url     string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// NewProxyClient creates a client for the proxy at cfg.URL.
func NewProxyClient(cfg ProxyConfig) (*ProxyClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("proxy url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger := logging.Component("llm.proxy")
	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-proxy",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit state changed")
		},
	})

	return &ProxyClient{
		url:     cfg.URL,
		http:    httpClient,
		breaker: breaker,
		logger:  logger,
	}, nil
}

// GenerateReplies implements Generator.
func (c *ProxyClient) GenerateReplies(ctx context.Context, req ReplyRequest) ([]GeneratedReply, error) {
	body, err := c.call(ctx, proxyRequest{
		Action:            ActionGenerateReplies,
		PostText:          req.PostText,
		ReplyingAsUser:    req.ReplyingAs,
		PastUserPostTexts: req.PastUserPostTexts,
		MainUserName:      req.MainUserName,
	})
	if err != nil {
		return nil, err
	}

	var replies []GeneratedReply
	if err := json.Unmarshal(body, &replies); err != nil {
		return nil, fmt.Errorf("%w: decode replies: %v", ErrTransport, err)
	}
	if replies == nil {
		return nil, ErrUnavailable
	}
	return cleanReplies(replies), nil
}

// GenerateQuoteComment implements Generator.
func (c *ProxyClient) GenerateQuoteComment(ctx context.Context, req QuoteRequest) (*GeneratedQuoteComment, error) {
	body, err := c.call(ctx, proxyRequest{
		Action:           ActionGenerateQuoteComment,
		OriginalPostText: req.OriginalPostText,
		MainUserName:     req.MainUserName,
	})
	if err != nil {
		return nil, err
	}

	var comment *GeneratedQuoteComment
	if err := json.Unmarshal(body, &comment); err != nil {
		return nil, fmt.Errorf("%w: decode quote comment: %v", ErrTransport, err)
	}
	return cleanQuote(comment), nil
}

// call posts one request through the circuit breaker and returns the raw
// 2xx body. A rejected API key is reported as ErrUnavailable and does not
// count against the breaker.
func (c *ProxyClient) call(ctx context.Context, payload proxyRequest) ([]byte, error) {
	var unavailable bool
	result, err := c.breaker.Execute(func() (interface{}, error) {
		body, keyRejected, err := c.do(ctx, payload)
		if keyRejected {
			unavailable = true
			return nil, nil
		}
		return body, err
	})

	switch {
	case unavailable:
		c.logger.Warn().Str("action", payload.Action).Msg("proxy rejected the API key")
		return nil, ErrUnavailable
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.logger.Debug().Str("action", payload.Action).Msg("proxy circuit open")
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	case err != nil:
		c.logger.Warn().Str("action", payload.Action).Str("error", logging.Redact(err.Error())).Msg("proxy call failed")
		return nil, err
	}
	return result.([]byte), nil
}

func (c *ProxyClient) do(ctx context.Context, payload proxyRequest) (body []byte, keyRejected bool, err error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("%w: encode request: %v", ErrTransport, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, false, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var perr proxyError
		_ = json.Unmarshal(body, &perr)
		if resp.StatusCode == http.StatusInternalServerError && mentionsAPIKey(perr.Error) {
			return nil, true, nil
		}
		msg := perr.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, false, fmt.Errorf("%w: proxy status %d: %s", ErrTransport, resp.StatusCode, msg)
	}
	return body, false, nil
}
