package cli

import (
	"github.com/spf13/cobra"

	"github.com/tOgg1/cheerfeed/internal/app"
	"github.com/tOgg1/cheerfeed/internal/models"
	"github.com/tOgg1/cheerfeed/internal/timeline"
)

type timelineResult struct {
	Items        models.Timeline `json:"items"`
	Page         timeline.Page   `json:"page"`
	Banner       string          `json:"banner,omitempty"`
	QuotaMessage string          `json:"quotaMessage,omitempty"`
}

func (rt *runtime) newTimelineCmd() *cobra.Command {
	var (
		all   bool
		pages int
	)
	cmd := &cobra.Command{
		Use:     "timeline",
		Aliases: []string{"ls", "feed"},
		Short:   "Show the timeline, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pages < 1 {
				return Exitf(ExitCodeUsage, "--pages must be at least 1")
			}
			return rt.withApp(cmd.Context(), func(a *app.App) error {
				store := a.Timeline
				if all {
					for store.Page().HasMore {
						store.ShowMore()
					}
				} else {
					for i := 1; i < pages && store.Page().HasMore; i++ {
						store.ShowMore()
					}
				}
				result := timelineResult{
					Items:        store.Visible(),
					Page:         store.Page(),
					Banner:       store.Banner(),
					QuotaMessage: store.QuotaMessage(),
				}

				out := cmd.OutOrStdout()
				if rt.structured() {
					return rt.writeOutput(out, result)
				}
				r := newRenderer(out)
				r.banner(result.Banner)
				if result.QuotaMessage != "" && result.QuotaMessage != result.Banner {
					r.printf("%s\n\n", r.st.Warn.Render(result.QuotaMessage))
				}
				r.timeline(result.Items, result.Page)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "show every item")
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to show")
	return cmd
}
