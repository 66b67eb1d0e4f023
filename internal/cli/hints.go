package cli

import (
	"fmt"
	"io"

	"github.com/tOgg1/cheerfeed/internal/models"
)

// HintContext provides context for generating relevant next steps.
type HintContext struct {
	// Action is the command that was executed (e.g., "post", "more", "reply")
	Action string

	// PostID is the post involved (if any)
	PostID string

	// Post is the post as last seen (if any)
	Post *models.Post

	// ItemID is the post or quote-repost a reply belongs to
	ItemID string

	// Reply is the reply created by the command (if any)
	Reply *models.Reply
}

// PrintNextSteps prints contextual next steps after a successful command.
func PrintNextSteps(out io.Writer, ctx HintContext) {
	hints := generateHints(ctx)
	if len(hints) == 0 {
		return
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	for _, hint := range hints {
		fmt.Fprintf(out, "  %s\n", hint)
	}
}

// generateHints generates context-aware hints for the given action.
func generateHints(ctx HintContext) []string {
	switch ctx.Action {
	case "post", "more":
		return hintsForPost(ctx)
	case "reply":
		return hintsForReply(ctx)
	default:
		return nil
	}
}

func hintsForPost(ctx HintContext) []string {
	hints := make([]string, 0, 3)
	id := shortID(ctx.PostID)

	if ctx.Post != nil && ctx.Post.Replies.Backlog() > 0 {
		hints = append(hints, fmt.Sprintf("%d replies still hidden; they appear on the next run (or use --wait)", ctx.Post.Replies.Backlog()))
	}
	if ctx.Post != nil && ctx.Post.CanLoadMore && !ctx.Post.IsGeneratingMoreReplies {
		hints = append(hints, fmt.Sprintf("cheerfeed more %s    # load another batch of replies", id))
	}
	if ctx.Post != nil {
		if visible := ctx.Post.Replies.Visible(); len(visible) > 0 {
			hints = append(hints, fmt.Sprintf("cheerfeed reply %s %s \"...\"    # answer a reply", id, shortID(visible[0].ID)))
		}
	}
	hints = append(hints, "cheerfeed timeline    # see everything")
	return hints
}

func hintsForReply(ctx HintContext) []string {
	if ctx.Reply == nil {
		return nil
	}
	hints := make([]string, 0, 2)
	if len(ctx.Reply.Children) > 0 {
		child := ctx.Reply.Children[len(ctx.Reply.Children)-1]
		hints = append(hints, fmt.Sprintf("cheerfeed reply %s %s \"...\"    # keep the thread going", shortID(ctx.ItemID), shortID(child.ID)))
	}
	hints = append(hints, "cheerfeed timeline    # see everything")
	return hints
}
