package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tOgg1/cheerfeed/internal/config"
)

// configView reports whether an api key resolved without printing it.
type configView struct {
	ConfigFile string         `json:"config_file,omitempty" yaml:"config_file,omitempty"`
	APIKeySet  bool           `json:"api_key_set" yaml:"api_key_set"`
	Config     *config.Config `json:"config" yaml:"config"`
}

func (rt *runtime) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view := configView{
				Config:     rt.cfg,
				ConfigFile: rt.loader.ConfigFileUsed(),
				APIKeySet:  rt.cfg.LLM.APIKey() != "",
			}
			if rt.jsonOut {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(view); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print where state and configuration live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := map[string]string{
				"config":  rt.loader.ConfigFileUsed(),
				"storage": rt.cfg.StoragePath(),
				"context": rt.contextStore().Path(),
			}
			if rt.structured() {
				return rt.writeOutput(cmd.OutOrStdout(), paths)
			}
			rows := [][]string{
				{"config", orNone(paths["config"])},
				{"storage", orNone(paths["storage"])},
				{"context", paths["context"]},
			}
			return writeTable(cmd.OutOrStdout(), nil, rows)
		},
	})
	return cmd
}

func (rt *runtime) newContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Show or clear the remembered post and quote-repost",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := rt.contextStore().Load()
			if err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}
			if rt.structured() {
				return rt.writeOutput(cmd.OutOrStdout(), ctx)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ctx.String())
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget the remembered ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.contextStore().Clear(); err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}
			if !rt.structured() {
				fmt.Fprintln(cmd.OutOrStdout(), "Context cleared.")
			}
			return nil
		},
	})
	return cmd
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
