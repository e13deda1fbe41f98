// Command taglog records a session against the simulated sources until the
// duration elapses or the process is interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linchenxuan/taglog"
	"github.com/linchenxuan/taglog/config"
	"github.com/linchenxuan/taglog/event"
	"github.com/linchenxuan/taglog/log"
	"github.com/linchenxuan/taglog/metrics"
	"github.com/linchenxuan/taglog/session"
	"github.com/linchenxuan/taglog/source/sim"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config file, defaults when empty")
	root := flag.String("root", "", "session root directory, overrides session.rootDir")
	duration := flag.Duration("duration", 10*time.Second, "recording length, 0 records until interrupted")
	click := flag.Duration("click", 2*time.Second, "reference marker click period, 0 disables clicks")
	flag.Parse()

	if err := run(*cfgPath, *root, *duration, *click); err != nil {
		fmt.Fprintf(os.Stderr, "taglog: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath, root string, duration, click time.Duration) error {
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.Load(cfgPath); err != nil {
			return err
		}
	}
	if root != "" {
		cfg.Session.RootDir = root
	}

	app, err := taglog.New(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	_ = app.Publisher.RegisterSubscriber(event.TopicMarkerDetected, func(p any) {
		fmt.Printf("marker %v detected\n", p)
	})

	s, err := app.StartSession()
	if err != nil {
		_ = app.Stop(context.Background())
		return err
	}

	sensors, err := sim.NewSensorsFromConfig(cfg.Sim)
	if err != nil {
		_ = app.Stop(context.Background())
		return err
	}
	scanner := sim.NewScanner(s.OnScan, cfg.Sim.AccessPoints, cfg.Sim.ScanLatency, cfg.Sim.FailEvery, cfg.Sim.Seed)
	defer scanner.Close()
	tracking := sim.NewTracking(cfg.Sim.Markers, cfg.Sim.MarkerSpacing)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	if err := s.Start(sensors, scanner); err != nil {
		_ = app.Stop(context.Background())
		return err
	}
	fmt.Printf("recording to %s\n", s.Dir())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.DriveTracking(gctx, tracking, cfg.Sim.FramePeriod)
	})
	if click > 0 {
		g.Go(func() error {
			return clickLoop(gctx, s, click)
		})
	}
	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Session.CloseTimeout)
	defer cancel()
	err = errors.Join(err, app.Stop(stopCtx))

	summary(app, s, sensors.Emitted())
	return err
}

func clickLoop(ctx context.Context, s *session.Session, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.ClickReferenceMarker(); err != nil {
				log.Warn().Err(err).Msg("reference marker click")
			}
		}
	}
}

func summary(app *taglog.App, s *session.Session, emitted int64) {
	fmt.Printf("session %s in %s\n", s.ID(), s.Dir())
	fmt.Printf("  sensor samples emitted: %d\n", emitted)
	fmt.Printf("  scans captured: %d, markers tracked: %d, reference clicks: %d\n",
		s.ScanCount(), len(s.Tracked()), s.MarkerCount())
	for _, stream := range session.Streams() {
		sk := s.Sink(stream)
		fmt.Printf("  %-10s %-14s batches=%d written=%d dropped=%d\n",
			stream, session.FileName(stream), sk.Batches(), sk.Written(), sk.Dropped())
	}
	fmt.Printf("  dispatched tasks: %v\n", app.Metrics.Sum(metrics.GroupTaglog, metrics.NameDispatchTaskTotal))
}
