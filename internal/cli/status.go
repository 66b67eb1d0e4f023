package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/cheerfeed/internal/app"
	"github.com/tOgg1/cheerfeed/internal/db"
	"github.com/tOgg1/cheerfeed/internal/models"
)

func (rt *runtime) newQuotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show generation quota usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(cmd.Context(), func(a *app.App) error {
				status := a.Quota.Status()
				out := cmd.OutOrStdout()
				if rt.structured() {
					return rt.writeOutput(out, status)
				}

				blocked := formatYesNo(status.Blocked)
				if status.BlockedUntil != nil {
					blocked = fmt.Sprintf("until %s", status.BlockedUntil.Local().Format(time.Kitchen))
				}
				rows := [][]string{
					{"date", status.Date},
					{"today", fmt.Sprintf("%d / %d", status.DailyCount, status.DailyLimit)},
					{"daily limit reached", formatYesNo(status.DailyLimitReached)},
					{"last minute", fmt.Sprintf("%d / %d", status.RecentCalls, status.BurstThreshold)},
					{"blocked", blocked},
				}
				if err := writeTable(out, []string{"QUOTA", "VALUE"}, rows); err != nil {
					return err
				}
				if status.Message != "" {
					st := stylesFor(out)
					fmt.Fprintf(out, "\n%s\n", st.Warn.Render(status.Message))
				}
				return nil
			})
		},
	}
}

func (rt *runtime) newNameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "name [new-name]",
		Short: "Show or change your display name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return rt.withApp(ctx, func(a *app.App) error {
				user := a.Timeline.MainUser()
				if len(args) == 1 {
					name := strings.TrimSpace(args[0])
					if name == "" {
						return Exitf(ExitCodeUsage, "name must not be empty")
					}
					var err error
					if user, err = a.Timeline.SetMainUserName(ctx, name); err != nil {
						return err
					}
				}
				out := cmd.OutOrStdout()
				if rt.structured() {
					return rt.writeOutput(out, user)
				}
				fmt.Fprintf(out, "%s %s\n", user.Name, user.Username)
				return nil
			})
		},
	}
}

func (rt *runtime) newEventsCmd() *cobra.Command {
	var (
		limit  int
		entity string
		kind   string
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the recorded activity log",
		Long:  "Show the activity log. Unfiltered output lists the newest events first. Only the sqlite storage backend keeps a log.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return Exitf(ExitCodeUsage, "--limit must be at least 1")
			}
			ctx := cmd.Context()
			return rt.withApp(ctx, func(a *app.App) error {
				if a.Events == nil {
					return Exitf(ExitCodeUsage, "the %s storage backend keeps no activity log", rt.cfg.Storage.Backend)
				}
				var (
					events []*models.Event
					err    error
				)
				if entity == "" && kind == "" {
					events, err = a.Events.Recent(ctx, limit)
				} else {
					q := db.EventQuery{Limit: limit}
					if entity != "" {
						item, err := findItem(a.Timeline.Items(), entity)
						if err != nil {
							return Exitf(ExitCodeUsage, "%v", err)
						}
						id := item.ItemID()
						q.EntityID = &id
					}
					if kind != "" {
						t := models.EventType(kind)
						q.Type = &t
					}
					var page *db.EventPage
					if page, err = a.Events.Query(ctx, q); err == nil {
						events = page.Events
					}
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if rt.structured() {
					return rt.writeOutput(out, events)
				}
				if len(events) == 0 {
					fmt.Fprintln(out, "No events recorded.")
					return nil
				}
				tbl := newTable("TIME", "TYPE", "ENTITY", "ID", "BYTES").alignRight(4)
				for _, e := range events {
					tbl.add(
						e.Timestamp.Local().Format(time.DateTime),
						string(e.Type),
						string(e.EntityType),
						shortID(e.EntityID),
						strconv.Itoa(len(e.Payload)),
					)
				}
				return tbl.render(out)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of events")
	cmd.Flags().StringVar(&entity, "item", "", "only events for this post or quote-repost (id or prefix)")
	cmd.Flags().StringVar(&kind, "type", "", "only events of this type")
	return cmd
}
