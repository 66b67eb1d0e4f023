package cli

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/cheerfeed/internal/app"
	"github.com/tOgg1/cheerfeed/internal/config"
	"github.com/tOgg1/cheerfeed/internal/models"
	"github.com/tOgg1/cheerfeed/internal/timeline"
)

const waitPollInterval = 100 * time.Millisecond

// postResult is the structured output of post and more.
type postResult struct {
	Post   *models.Post           `json:"post"`
	Quotes []*models.QuoteRetweet `json:"quotes,omitempty"`
	Banner string                 `json:"banner,omitempty"`
}

func (rt *runtime) newPostCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "post <text>",
		Short: "Publish a post and collect its replies",
		Long: `Publish a post. The command returns once the first round of replies has
arrived. With --wait it stays until every reply is shown and the
quote-repost attempt has run.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			text := strings.Join(args, " ")
			return rt.withApp(ctx, func(a *app.App) error {
				post, err := a.Timeline.CreatePost(ctx, text)
				if err != nil {
					return err
				}
				rt.remember(func(c *config.Context) { c.SetPost(post.ID, post.Text) })

				result := postResult{Post: post}
				if wait {
					if err := waitForActivity(ctx, a.Timeline); err != nil {
						return err
					}
					result = collectPost(a.Timeline, post)
					if n := len(result.Quotes); n > 0 {
						rt.remember(func(c *config.Context) { c.SetQuote(result.Quotes[n-1].ID) })
					}
				}
				result.Banner = a.Timeline.Banner()
				return rt.printPost(cmd, result, "post")
			})
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for every reply and the quote-repost attempt")
	return cmd
}

func (rt *runtime) newMoreCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "more [post-id]",
		Short: "Load another batch of replies",
		Long:  "Load another batch of replies for a post. Defaults to the post used last.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := rt.postArg(args)
			if err != nil {
				return err
			}
			return rt.withApp(ctx, func(a *app.App) error {
				target, err := findPost(a.Timeline.Items(), id)
				if err != nil {
					return Exitf(ExitCodeUsage, "%v", err)
				}
				post, err := a.Timeline.LoadMoreReplies(ctx, target.ID)
				if err != nil {
					return err
				}
				rt.remember(func(c *config.Context) { c.SetPost(post.ID, post.Text) })

				result := postResult{Post: post}
				if wait {
					if err := waitForActivity(ctx, a.Timeline); err != nil {
						return err
					}
					result = collectPost(a.Timeline, post)
				}
				result.Banner = a.Timeline.Banner()
				return rt.printPost(cmd, result, "more")
			})
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait until every reply is shown")
	return cmd
}

func (rt *runtime) postArg(args []string) (string, error) {
	var id string
	if len(args) > 0 {
		id = args[0]
	}
	ctx, err := rt.contextStore().Load()
	if err != nil {
		return "", Exitf(ExitCodeFailure, "%v", err)
	}
	id, err = ctx.ResolvePost(id)
	if err != nil {
		return "", Exitf(ExitCodeUsage, "%v", err)
	}
	return id, nil
}

func (rt *runtime) printPost(cmd *cobra.Command, result postResult, action string) error {
	out := cmd.OutOrStdout()
	if rt.structured() {
		return rt.writeOutput(out, result)
	}
	r := newRenderer(out)
	r.banner(result.Banner)
	r.post(result.Post)
	for _, q := range result.Quotes {
		r.printf("\n")
		r.quote(q)
	}
	PrintNextSteps(out, HintContext{Action: action, PostID: result.Post.ID, Post: result.Post})
	return nil
}

// collectPost reloads a post and the quote-reposts made of it.
func collectPost(store *timeline.Store, fallback *models.Post) postResult {
	result := postResult{Post: fallback}
	for _, item := range store.Items() {
		switch v := item.(type) {
		case *models.Post:
			if v.ID == fallback.ID {
				result.Post = v
			}
		case *models.QuoteRetweet:
			if v.QuotedPost.ID == fallback.ID {
				result.Quotes = append(result.Quotes, v)
			}
		}
	}
	return result
}

// waitForActivity blocks until no reveal or quote-repost timer is pending.
func waitForActivity(ctx context.Context, store *timeline.Store) error {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for store.PendingReveals() > 0 || store.PendingQuotes() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
