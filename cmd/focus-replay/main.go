// focus-replay streams recorded observations (one JSON object per line) or
// JPEG frames to a focusd session and prints each result.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-focus/pkg/attention"
	"github.com/teslashibe/go-focus/pkg/client"
	"github.com/teslashibe/go-focus/pkg/protocol"
)

type replayOptions struct {
	server  string
	session string
	fps     float64
	client  client.Options
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("❌ %v", err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := replayOptions{client: client.DefaultOptions()}

	cmd := &cobra.Command{
		Use:          "focus-replay [file.jsonl | frame.jpg ...]",
		Short:        "Replay observations or frames against a focusd session",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return replay(ctx, cmd.OutOrStdout(), o, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.server, "server", "s", "http://localhost:8080", "focusd base URL")
	f.StringVar(&o.session, "session", "", "session ID (default: random)")
	f.Float64Var(&o.fps, "fps", 10, "frames per second; 0 sends as fast as replies arrive")
	f.StringVar(&o.client.Profile, "profile", "", "engine profile for the new session")
	f.StringVar(&o.client.Backend, "backend", "", "detector backend for JPEG frames")
	f.StringVar(&o.client.UserName, "user", "", "participant name")
	f.BoolVar(&o.client.Start, "start", true, "create the session for the duration of the replay")
	return cmd
}

func replay(ctx context.Context, out io.Writer, o replayOptions, args []string) error {
	if o.session == "" {
		o.session = uuid.NewString()
	}
	c, err := client.Dial(ctx, o.server, o.session, o.client)
	if err != nil {
		return err
	}
	defer c.Close()
	fmt.Fprintf(out, "%s %s\n", color.CyanString("session"), c.Session())

	var tick <-chan time.Time
	if o.fps > 0 {
		t := time.NewTicker(time.Duration(float64(time.Second) / o.fps))
		defer t.Stop()
		tick = t.C
	}
	wait := func() error {
		if tick == nil {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			return nil
		}
	}

	send := func(label string, fn func() (*protocol.ResultData, error)) error {
		if err := wait(); err != nil {
			return err
		}
		r, err := fn()
		printResult(out, label, r, err)
		return nil
	}

	for _, path := range args {
		if isImage(path) {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if err := send(filepath.Base(path), func() (*protocol.ResultData, error) { return c.SendFrame(data) }); err != nil {
				return err
			}
			continue
		}
		if err := replayLines(path, func(n int, od protocol.ObservationData) error {
			if od.CapturedAt == 0 {
				od.CapturedAt = time.Now().UnixMilli()
			}
			label := fmt.Sprintf("%s:%d", filepath.Base(path), n)
			return send(label, func() (*protocol.ResultData, error) { return c.Observe(od) })
		}); err != nil {
			return err
		}
	}

	st, err := c.Stats()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s average %.1f, focused %.0f%% over %d frames (%s)\n",
		color.New(color.Bold).Sprint("summary:"), st.AverageScore, st.FocusPercentage, st.Samples, st.TotalFocusedTime.Round(time.Millisecond))
	return nil
}

func isImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}

// replayLines calls fn for every non-empty line of a JSONL file. "-" reads
// stdin.
func replayLines(path string, fn func(line int, od protocol.ObservationData) error) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var od protocol.ObservationData
		if err := json.Unmarshal([]byte(line), &od); err != nil {
			return fmt.Errorf("%s:%d: %w", path, n, err)
		}
		if err := fn(n, od); err != nil {
			return err
		}
	}
	return sc.Err()
}

var stateColors = map[attention.State]*color.Color{
	attention.Focused:    color.New(color.FgGreen, color.Bold),
	attention.Distracted: color.New(color.FgYellow),
	attention.Drowsy:     color.New(color.FgMagenta),
	attention.Sleeping:   color.New(color.FgRed),
	attention.NoFace:     color.New(color.FgHiBlack),
}

func printResult(w io.Writer, label string, r *protocol.ResultData, err error) {
	if err != nil {
		fmt.Fprintf(w, "%-24s %s\n", label, color.RedString("%v", err))
		return
	}
	c, ok := stateColors[r.State]
	if !ok {
		c = color.New(color.Reset)
	}
	fmt.Fprintf(w, "%-24s %5.1f  %s  %s\n", label, r.Score, c.Sprintf("%-10s", r.State), r.Message)
}
