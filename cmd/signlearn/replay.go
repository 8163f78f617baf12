package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ayusman/signlearn/internal/detector"
	"github.com/ayusman/signlearn/internal/pipeline"
	"github.com/ayusman/signlearn/internal/sink"
)

// maxFrameLine bounds one JSON line; a full frame with a refined face mesh is well under 1 MiB.
const maxFrameLine = 4 << 20

type replayOptions struct {
	input  string
	target string
	fps    float64
	record bool
	json   bool
}

func newReplayCmd(c *cli) *cobra.Command {
	opts := &replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run recorded landmark frames through one session",
		Long: `Replay reads landmark frames, one JSON object per line, and feeds them
through a session exactly as a live client would. Frames are paced at --fps
so windows that arrive while a prediction is in flight are dropped the same
way they are live. Use --fps 0 to push frames as fast as possible.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), c, opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.input, "input", "i", "", "JSONL frames file, - for stdin")
	flags.StringVar(&opts.target, "target", "", "sign being practiced")
	flags.Float64Var(&opts.fps, "fps", 30, "frames per second, 0 to disable pacing")
	flags.BoolVar(&opts.record, "record", true, "record the session in the store")
	flags.BoolVar(&opts.json, "json", false, "print predictions as JSON lines")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runReplay(ctx context.Context, c *cli, opts *replayOptions, out io.Writer) error {
	frames, err := readFrames(opts.input)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return errors.New("no frames in input")
	}
	logger := c.logger

	var (
		mu     sync.Mutex
		events []sink.Event
	)
	sinks := pipeline.Sinks{pipeline.PredictionFunc(func(p pipeline.Prediction) {
		mu.Lock()
		events = append(events, sink.NewEvent(p))
		mu.Unlock()
	})}

	var recorder *sink.Recorder
	if opts.record {
		backend, err := c.openBackend(ctx)
		if err != nil {
			return err
		}
		defer backend.Close()
		recorder = sink.NewRecorder(backend, logger)
		sinks = append(pipeline.Sinks{recorder}, sinks...)
	}

	session, err := pipeline.New(pipeline.Config{
		Source:     pipeline.SourceReplay,
		Target:     opts.target,
		WindowSize: c.cfg.WindowSize,
		Predictor:  c.predictor(),
		Sink:       sinks,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	if recorder != nil {
		if err := recorder.Begin(ctx, session); err != nil {
			return err
		}
	}

	bar := progressbar.NewOptions(len(frames),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("replaying"),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	var tick <-chan time.Time
	if opts.fps > 0 {
		ticker := time.NewTicker(time.Duration(float64(time.Second) / opts.fps))
		defer ticker.Stop()
		tick = ticker.C
	}

	feedErr := feed(ctx, session, frames, tick, bar)
	_ = bar.Finish()

	// Let the last submission land before closing.
	if feedErr == nil {
		session.Wait()
	}
	session.Close()

	if recorder != nil {
		endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := recorder.End(endCtx, session); err != nil {
			logger.Error("failed to record session end", "error", err)
		}
	}
	if feedErr != nil {
		return feedErr
	}

	mu.Lock()
	defer mu.Unlock()
	if opts.json {
		enc := json.NewEncoder(out)
		for _, e := range events {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}
	return printReplay(out, session, events)
}

func feed(ctx context.Context, s *pipeline.Session, frames []*detector.Frame, tick <-chan time.Time, bar *progressbar.ProgressBar) error {
	for _, f := range frames {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.HandleFrame(f); err != nil {
			return err
		}
		_ = bar.Add(1)
	}
	return nil
}

func printReplay(out io.Writer, s *pipeline.Session, events []sink.Event) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tPREDICTION\tMATCHED\tLATENCY")
	for _, e := range events {
		fmt.Fprintf(tw, "%d\t%s\t%t\t%dms\n", e.Sequence, e.Prediction, e.Matched, e.LatencyMS)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	st := s.Stats()
	_, err := fmt.Fprintf(out, "\nsession %s: %d frames, %d windows, %d submitted, %d dropped, %d ok, %d failed, %d matched\n",
		s.ID(), st.Frames, st.Windows, st.Submitted, st.Dropped, st.Succeeded, st.Failed(), st.Matched)
	return err
}

// readFrames decodes one detector.Frame per non-empty line.
func readFrames(path string) ([]*detector.Frame, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameLine)

	var frames []*detector.Frame
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var f detector.Frame
		if err := json.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		frames = append(frames, &f)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return frames, nil
}
