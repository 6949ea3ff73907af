// Command swapdemo renders the swapframe triangle into a headless panel.
//
// Usage:
//
//	swapdemo -backend sim -frames 60 -resize 1024x768@30 -snapshot out.bmp
//
// Settings may also come from a TOML file given with -config; flags on the
// command line override the file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/bmp"

	"github.com/gogpu/swapframe"
	_ "github.com/gogpu/swapframe/backend/native"
	_ "github.com/gogpu/swapframe/backend/sim"
	"github.com/gogpu/swapframe/host"
)

func main() {
	cfg, err := ParseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "swapdemo:", err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	swapframe.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log, os.Stdout); err != nil {
		log.Error("swapdemo failed", "err", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, log *slog.Logger, out io.Writer) (err error) {
	opts := []swapframe.Option{
		swapframe.WithLogger(log),
		swapframe.WithDebug(cfg.Debug),
		swapframe.WithWaitTimeout(cfg.Timeout.Duration),
		swapframe.WithClearColor(gputypes.Color{R: cfg.Clear[0], G: cfg.Clear[1], B: cfg.Clear[2], A: cfg.Clear[3]}),
	}
	if cfg.Backend != "auto" {
		opts = append(opts, swapframe.WithBackend(cfg.Backend))
	}

	r := swapframe.New(opts...)
	panel := host.NewPanel(float64(cfg.Width), float64(cfg.Height))
	if err := r.Initialize(panel); err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	log.Info("swapdemo: device", "name", r.DeviceName())

	sched := &schedule{Target: r, panel: panel, resizes: cfg.Resizes}
	loop := host.New(sched,
		host.WithInterval(cfg.Interval.Duration),
		host.WithLogger(log),
		host.WithFrameLimit(cfg.Frames),
	)
	panel.Attach(loop)

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if err := r.WaitForGPU(); err != nil {
		return err
	}

	printStats(out, r.Stats(), loop, panel)
	if cfg.Snapshot != "" {
		if err := writeSnapshot(r, cfg.Snapshot); err != nil {
			return err
		}
		log.Info("swapdemo: snapshot written", "path", cfg.Snapshot)
	}
	return nil
}

// schedule resizes the panel after the configured frames.
type schedule struct {
	host.Target
	panel   *host.Panel
	resizes []Resize
	frames  uint64
}

func (s *schedule) Render() error {
	if err := s.Target.Render(); err != nil {
		return err
	}
	s.frames++
	for _, r := range s.resizes {
		if r.Frame == s.frames {
			s.panel.SetSize(float64(r.Width), float64(r.Height))
		}
	}
	return nil
}

func printStats(w io.Writer, s swapframe.Stats, loop *host.Loop, panel *host.Panel) {
	fmt.Fprintf(w, "frames:         %d\n", s.Frames)
	fmt.Fprintf(w, "presented:      %d\n", panel.Frames())
	fmt.Fprintf(w, "draws:          %d (skipped %d)\n", s.Draws, s.SkippedDraws)
	fmt.Fprintf(w, "resizes:        %d\n", s.Resizes)
	fmt.Fprintf(w, "blocking waits: %d\n", s.BlockingWaits)
	fmt.Fprintf(w, "fence:          %d/%d\n", s.FenceCompleted, s.FenceLast)
	fmt.Fprintf(w, "shader cache:   %d hits, %d misses\n", s.ShaderCacheHits, s.ShaderCacheMisses)
	fmt.Fprintf(w, "loop errors:    %d\n", loop.Errors())
}

func writeSnapshot(r *swapframe.Renderer, path string) (err error) {
	img, err := r.Snapshot()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return bmp.Encode(f, img)
}
