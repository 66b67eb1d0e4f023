package timeline

import (
	"errors"

	"github.com/tOgg1/cheerfeed/internal/llm"
	"github.com/tOgg1/cheerfeed/internal/models"
)

var (
	ErrEmptyText     = errors.New("text is empty")
	ErrItemNotFound  = errors.New("timeline item not found")
	ErrReplyNotFound = errors.New("reply not found")
	ErrInFlight      = errors.New("a request for this target is already in progress")
	ErrQuotaDenied   = errors.New("api quota exhausted")
	ErrClosed        = errors.New("timeline store is closed")

	errUnchanged = errors.New("unchanged")
)

// User-facing texts written into entities.
const (
	MsgRateLimited = "API usage is temporarily restricted."

	BannerServiceUnavailable = "The API key is missing or invalid. Generation features are limited."

	MsgInterrupted = "Reply generation was interrupted. Try loading more replies."
)

// outcomeMessages is the per-operation text for each failure class.
type outcomeMessages struct {
	unavailable string
	empty       string
	transport   string
}

func (m outcomeMessages) text(class models.ErrorClass) string {
	switch class {
	case models.ErrorClassServiceUnavailable:
		return m.unavailable
	case models.ErrorClassEmptyResult:
		return m.empty
	case models.ErrorClassTransportFailure:
		return m.transport
	}
	return ""
}

var (
	initialMessages = outcomeMessages{
		unavailable: "The API key is missing or invalid. Check the server logs.",
		empty:       "Couldn't generate replies this time. Please try again!",
		transport:   "An unexpected error occurred while fetching replies.",
	}
	moreMessages = outcomeMessages{
		unavailable: "Couldn't generate more replies because of an API key problem.",
		empty:       "Couldn't generate any new replies.",
		transport:   "An error occurred while fetching more replies.",
	}
	childMessages = outcomeMessages{
		unavailable: "Couldn't generate an AI reply because of an API key problem.",
		empty:       "The AI couldn't come up with a response to this reply.",
		transport:   "An error occurred while fetching the AI reply.",
	}
)

// classify maps a generator outcome to the failure taxonomy. An empty
// class means success.
func classify(err error, n int) models.ErrorClass {
	switch {
	case errors.Is(err, llm.ErrUnavailable):
		return models.ErrorClassServiceUnavailable
	case err != nil:
		return models.ErrorClassTransportFailure
	case n == 0:
		return models.ErrorClassEmptyResult
	}
	return ""
}

func quotaText(msg string) string {
	if msg == "" {
		return MsgRateLimited
	}
	return msg
}
