package cli

import (
	"github.com/spf13/cobra"

	"github.com/tOgg1/cheerfeed/internal/app"
	"github.com/tOgg1/cheerfeed/internal/logging"
	"github.com/tOgg1/cheerfeed/internal/server"
)

func (rt *runtime) newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the timeline over HTTP and a websocket stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				rt.cfg.Server.Addr = addr
			}
			ctx := cmd.Context()
			return rt.withApp(ctx, func(a *app.App) error {
				srv, err := server.New(server.Deps{
					Timeline:  a.Timeline,
					Quota:     a.Quota,
					Publisher: a.Publisher,
					Generator: a.Generator,
				}, rt.cfg.Server)
				if err != nil {
					return err
				}
				log := logging.Component("cli")
				log.Info().
					Str("addr", rt.cfg.Server.Addr).
					Str("storage", rt.cfg.Storage.Backend).
					Str("llm", rt.cfg.LLM.Backend).
					Msg("starting server")
				return srv.Run(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
