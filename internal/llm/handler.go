package llm

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/tOgg1/cheerfeed/internal/logging"
)

const maxRequestBytes = 64 << 10

// ProxyHandler serves the proxy protocol on top of any Generator, so
// browser clients never see the API key.
type ProxyHandler struct {
	gen    Generator
	logger zerolog.Logger
}

// NewProxyHandler wraps gen.
func NewProxyHandler(gen Generator) *ProxyHandler {
	return &ProxyHandler{gen: gen, logger: logging.Component("llm.handler")}
}

// ServeHTTP implements http.Handler.
func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeProxyJSON(w, http.StatusMethodNotAllowed, proxyError{Error: "method not allowed"})
		return
	}

	var req proxyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeProxyJSON(w, http.StatusBadRequest, proxyError{Error: "invalid request body"})
		return
	}

	ctx := r.Context()
	switch req.Action {
	case ActionGenerateReplies:
		replies, err := h.gen.GenerateReplies(ctx, ReplyRequest{
			PostText:          req.PostText,
			ReplyingAs:        req.ReplyingAsUser,
			PastUserPostTexts: req.PastUserPostTexts,
			MainUserName:      req.MainUserName,
		})
		if err != nil {
			h.writeError(w, req.Action, err)
			return
		}
		if replies == nil {
			replies = []GeneratedReply{}
		}
		writeProxyJSON(w, http.StatusOK, replies)

	case ActionGenerateQuoteComment:
		comment, err := h.gen.GenerateQuoteComment(ctx, QuoteRequest{
			OriginalPostText: req.OriginalPostText,
			MainUserName:     req.MainUserName,
		})
		if err != nil {
			h.writeError(w, req.Action, err)
			return
		}
		writeProxyJSON(w, http.StatusOK, comment)

	default:
		writeProxyJSON(w, http.StatusBadRequest, proxyError{Error: "unknown action"})
	}
}

func (h *ProxyHandler) writeError(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, ErrUnavailable) {
		writeProxyJSON(w, http.StatusInternalServerError, proxyError{Error: "API key is missing or invalid"})
		return
	}
	h.logger.Warn().Str("action", action).Str("error", logging.Redact(err.Error())).Msg("generation failed")
	writeProxyJSON(w, http.StatusBadGateway, proxyError{Error: "generation failed"})
}

func writeProxyJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
