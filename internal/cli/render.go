package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/tOgg1/cheerfeed/internal/models"
	"github.com/tOgg1/cheerfeed/internal/timeline"
)

const (
	colorMuted  = "#8b98a5"
	colorAccent = "#1d9bf0"
	colorError  = "#f4212e"
	colorWarn   = "#ffad1f"
	colorQuote  = "#00ba7c"
)

// styles holds the lipgloss styles of the human-readable output. The zero
// value renders plain text.
type styles struct {
	Name    lipgloss.Style
	Muted   lipgloss.Style
	Accent  lipgloss.Style
	Error   lipgloss.Style
	Warn    lipgloss.Style
	Quote   lipgloss.Style
	Pending lipgloss.Style
}

func plainStyles() styles {
	s := lipgloss.NewStyle()
	return styles{Name: s, Muted: s, Accent: s, Error: s, Warn: s, Quote: s, Pending: s}
}

func colorStyles() styles {
	return styles{
		Name:    lipgloss.NewStyle().Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted)),
		Accent:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorError)),
		Warn:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorWarn)).Bold(true),
		Quote:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorQuote)),
		Pending: lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted)).Italic(true),
	}
}

// stylesFor colors output only when it goes to a terminal.
func stylesFor(out io.Writer) styles {
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return colorStyles()
	}
	return plainStyles()
}

// renderer writes timeline items for humans.
type renderer struct {
	out io.Writer
	st  styles
	now time.Time
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, st: stylesFor(out), now: time.Now()}
}

func (r *renderer) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

func (r *renderer) banner(text string) {
	if text != "" {
		r.printf("%s\n\n", r.st.Warn.Render("! "+text))
	}
}

func (r *renderer) timeline(items models.Timeline, page timeline.Page) {
	if len(items) == 0 {
		r.printf("%s\n", r.st.Muted.Render("Nothing here yet. Try: cheerfeed post \"hello\""))
		return
	}
	for i, item := range items {
		if i > 0 {
			r.printf("\n")
		}
		r.item(item)
	}
	if page.HasMore {
		r.printf("\n%s\n", r.st.Muted.Render(fmt.Sprintf("Showing %d of %d. Use --all to see everything.", page.Visible, page.Total)))
	}
}

func (r *renderer) item(item models.TimelineItem) {
	switch v := item.(type) {
	case *models.Post:
		r.post(v)
	case *models.QuoteRetweet:
		r.quote(v)
	}
}

func (r *renderer) header(user models.UserProfile, ts int64, id string) string {
	return fmt.Sprintf("%s %s %s %s",
		r.st.Name.Render(user.Name),
		r.st.Muted.Render(user.Username),
		r.st.Muted.Render("· "+timeAgo(r.now, ts)),
		r.st.Muted.Render("["+shortID(id)+"]"),
	)
}

func (r *renderer) post(p *models.Post) {
	r.printf("%s\n", r.header(p.User, p.Timestamp, p.ID))
	r.printf("%s\n", p.Text)
	switch {
	case p.IsGeneratingReplies:
		r.printf("%s\n", r.st.Pending.Render("  generating replies..."))
	case p.ErrorGeneratingReplies != "":
		r.printf("%s\n", r.st.Error.Render("  "+p.ErrorGeneratingReplies))
	}
	r.replies(p.Replies.Visible(), 1)
	if n := p.Replies.Backlog(); n > 0 {
		r.printf("%s\n", r.st.Pending.Render(fmt.Sprintf("  %d more on the way", n)))
	}
	if p.IsGeneratingMoreReplies {
		r.printf("%s\n", r.st.Pending.Render("  loading more replies..."))
	}
	if p.ErrorGeneratingMoreReplies != "" {
		r.printf("%s\n", r.st.Error.Render("  "+p.ErrorGeneratingMoreReplies))
	}
}

func (r *renderer) quote(q *models.QuoteRetweet) {
	r.printf("%s %s\n", r.st.Quote.Render("⟳"), r.header(q.User, q.Timestamp, q.ID))
	r.printf("%s\n", q.Text)
	quoted := strings.TrimSpace(q.QuotedPost.Text)
	r.printf("%s\n", r.st.Muted.Render(fmt.Sprintf("  ┃ %s: %s", q.QuotedPost.User.Name, quoted)))
	r.replies(q.Replies.Visible(), 1)
}

func (r *renderer) replies(replies []*models.Reply, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, reply := range replies {
		r.printf("%s%s %s\n", indent, r.st.Accent.Render("↳"), r.header(reply.User, reply.Timestamp, reply.ID))
		r.printf("%s  %s\n", indent, reply.Text)
		if reply.IsGeneratingChildren {
			r.printf("%s  %s\n", indent, r.st.Pending.Render("typing..."))
		}
		if reply.ErrorGeneratingChildren != "" {
			r.printf("%s  %s\n", indent, r.st.Error.Render(reply.ErrorGeneratingChildren))
		}
		r.replies(reply.Children, depth+1)
	}
}

// timeAgo renders a millisecond timestamp relative to now.
func timeAgo(now time.Time, ms int64) string {
	d := now.Sub(time.UnixMilli(ms))
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
