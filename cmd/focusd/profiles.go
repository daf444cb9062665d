package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-focus/pkg/focus"
)

func newProfilesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles [name...]",
		Short: "Print engine profiles as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if len(names) == 0 {
				names = focus.ProfileNames()
			}
			out := make([]focus.Config, 0, len(names))
			for _, name := range names {
				cfg, err := focus.Profile(name)
				if err != nil {
					return err
				}
				out = append(out, cfg)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
