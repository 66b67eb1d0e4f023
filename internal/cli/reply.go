package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/cheerfeed/internal/app"
	"github.com/tOgg1/cheerfeed/internal/config"
	"github.com/tOgg1/cheerfeed/internal/models"
)

// replyResult is the structured output of reply and qreply.
type replyResult struct {
	ItemID string        `json:"itemId"`
	Reply  *models.Reply `json:"reply"`
	Banner string        `json:"banner,omitempty"`
}

func (rt *runtime) newReplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reply <item-id> <reply-id> <text>",
		Short: "Answer a reply as yourself",
		Long: `Answer a reply on a post or quote-repost. Your answer is attached under the
reply and its author responds once. IDs may be shortened to a unique prefix.`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			text := strings.Join(args[2:], " ")
			return rt.withApp(ctx, func(a *app.App) error {
				item, err := findItem(a.Timeline.Items(), args[0])
				if err != nil {
					return Exitf(ExitCodeUsage, "%v", err)
				}
				parent, err := findReply(item, args[1])
				if err != nil {
					return Exitf(ExitCodeUsage, "%v", err)
				}
				reply, err := a.Timeline.SubmitSubReply(ctx, item.ItemID(), parent.ID, text)
				if err != nil {
					return err
				}
				rt.remember(func(c *config.Context) {
					switch v := item.(type) {
					case *models.Post:
						c.SetPost(v.ID, v.Text)
					case *models.QuoteRetweet:
						c.SetQuote(v.ID)
					}
				})
				return rt.printReply(cmd, replyResult{ItemID: item.ItemID(), Reply: reply, Banner: a.Timeline.Banner()})
			})
		},
	}
}

func (rt *runtime) newQuoteReplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "qreply [quote-id] <text>",
		Short: "Reply directly to a quote-repost",
		Long: `Reply directly to a quote-repost of one of your posts. The quoting persona
answers once. With a single argument the quote-repost used last is taken.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var id, text string
			if len(args) == 2 {
				id, text = args[0], args[1]
			} else {
				text = args[0]
			}
			stored, err := rt.contextStore().Load()
			if err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}
			if id, err = stored.ResolveQuote(id); err != nil {
				return Exitf(ExitCodeUsage, "%v", err)
			}
			return rt.withApp(ctx, func(a *app.App) error {
				quote, err := findQuote(a.Timeline.Items(), id)
				if err != nil {
					return Exitf(ExitCodeUsage, "%v", err)
				}
				reply, err := a.Timeline.SubmitDirectReplyToQuoteRetweet(ctx, quote.ID, text)
				if err != nil {
					return err
				}
				rt.remember(func(c *config.Context) { c.SetQuote(quote.ID) })
				return rt.printReply(cmd, replyResult{ItemID: quote.ID, Reply: reply, Banner: a.Timeline.Banner()})
			})
		},
	}
}

func (rt *runtime) printReply(cmd *cobra.Command, result replyResult) error {
	out := cmd.OutOrStdout()
	if rt.structured() {
		return rt.writeOutput(out, result)
	}
	r := newRenderer(out)
	r.banner(result.Banner)
	r.replies([]*models.Reply{result.Reply}, 0)
	PrintNextSteps(out, HintContext{Action: "reply", ItemID: result.ItemID, Reply: result.Reply})
	return nil
}
