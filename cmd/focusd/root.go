package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teslashibe/go-focus/internal/config"
	"github.com/teslashibe/go-focus/internal/log"
)

// app carries the configuration shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "focusd",
		Short:         "focusd: focus scoring for video meeting participants",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return log.Init(cfg.Log)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default: ./focusd.yaml or /etc/focusd/focusd.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", flags.Lookup("log-format"))

	root.AddCommand(
		newServeCmd(a),
		newProfilesCmd(a),
		newAnalyzeCmd(a),
	)
	return root
}
