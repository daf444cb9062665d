package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-focus/internal/log"
	"github.com/teslashibe/go-focus/pkg/attention"
	"github.com/teslashibe/go-focus/pkg/detection"
	"github.com/teslashibe/go-focus/pkg/focus"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		backend  string
		profile  string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "analyze image...",
		Short: "Score a sequence of still images as consecutive frames",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := focus.Profile(profile)
			if err != nil {
				return err
			}
			tracker, err := focus.NewTracker(cfg, focus.WithLogger(log.L()))
			if err != nil {
				return err
			}
			obs, err := detection.Open(backend, a.cfg.Detection, log.L())
			if err != nil {
				return err
			}
			defer obs.Close()

			out := cmd.OutOrStdout()
			ts := time.Now()
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				var r focus.Result
				o, err := obs.Observe(data, ts)
				if err != nil {
					r = tracker.ProcessError(ts, err)
				} else {
					r = tracker.Process(o)
				}
				printResult(out, path, r)
				ts = ts.Add(interval)
			}

			st := tracker.Stats()
			fmt.Fprintf(out, "\n%s average %.1f, focused %.0f%% of %d frames\n",
				color.New(color.Bold).Sprint("session:"), st.AverageScore, st.FocusPercentage, st.Samples)
			return nil
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "yunet+cascade", "detector backend")
	cmd.Flags().StringVar(&profile, "profile", "cascade", "engine profile")
	cmd.Flags().DurationVar(&interval, "interval", 100*time.Millisecond, "time between consecutive images")
	return cmd
}

var stateColors = map[attention.State]*color.Color{
	attention.Focused:    color.New(color.FgGreen, color.Bold),
	attention.Distracted: color.New(color.FgYellow),
	attention.Drowsy:     color.New(color.FgMagenta),
	attention.Sleeping:   color.New(color.FgRed),
	attention.NoFace:     color.New(color.FgHiBlack),
}

func printResult(w io.Writer, name string, r focus.Result) {
	c, ok := stateColors[r.State]
	if !ok {
		c = color.New(color.Reset)
	}
	fmt.Fprintf(w, "%-32s %5.1f  %s  %s\n", name, r.Score, c.Sprintf("%-10s", r.State), r.Message)
	if r.Error != "" {
		fmt.Fprintf(w, "%-32s %s\n", "", color.RedString("error: %s", r.Error))
	}
}
