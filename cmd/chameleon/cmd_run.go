package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chameleon/internal/config"
	"chameleon/internal/engine"
	"chameleon/internal/snapshot"
)

var runCmd = &cobra.Command{
	Use:   "run [results.jsonl]",
	Short: "Run the engine over a stream of session results",
	Long: `Reads session results as JSON Lines from a file or stdin and feeds them
through the adaptive loop. Each line is one result:

  {"site_type":"survey_simple","success":true,"detected":false,"response_time_ms":1200}

Events (alerts, applied adaptations, risk forecasts) are logged as they
happen; a summary report is printed at the end of the stream.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEngine,
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := snapshot.New(cfg.Snapshot.Backend, cfg.SnapshotPath())
	if err != nil {
		return err
	}

	opts := []engine.Option{}
	if store != nil {
		opts = append(opts, engine.WithSnapshotStore(store))
	}
	eng := engine.New(cfg.EngineSettings(), opts...)

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
			eng.UpdateTunables(next.Tunables())
		})
		if err != nil {
			logger.Warn("config watch disabled", zap.Error(err))
		} else {
			defer watcher.Close()
		}
	}

	in := os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	feedDone := make(chan struct{})

	g.Go(func() error {
		defer close(feedDone)
		return feed(gctx, eng, in)
	})
	g.Go(func() error {
		drainEvents(gctx, eng, feedDone)
		return nil
	})

	runErr := g.Wait()
	if err := eng.Close(); err != nil {
		logger.Warn("engine shutdown", zap.Error(err))
	}
	closeStore(store)

	printReport(eng.Report())
	if dropped := eng.DroppedEvents(); dropped > 0 {
		logger.Warn("events dropped under load", zap.Int64("count", dropped))
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// closeStore releases backends that hold resources past the final flush (the
// sqlite store keeps a database handle open). The file backend has nothing to
// release and simply doesn't implement Closer.
func closeStore(store engine.SnapshotStore) {
	if closer, ok := store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("snapshot store close", zap.Error(err))
		}
	}
}

// feed ingests JSONL results until EOF or cancellation. Malformed lines are
// logged and skipped; the stream keeps going.
func feed(ctx context.Context, eng *engine.Engine, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if ctx.Err() != nil {
			return ctx.Err()
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var result engine.SessionResult
		if err := json.Unmarshal(raw, &result); err != nil {
			logger.Warn("skipping malformed line", zap.Int("line", line), zap.Error(err))
			continue
		}
		if err := eng.Ingest(ctx, result); err != nil {
			var ierr *engine.IngestionError
			if errors.As(err, &ierr) {
				logger.Warn("result rejected", zap.Int("line", line), zap.Error(err))
				continue
			}
			return err
		}
	}
	return scanner.Err()
}

// drainEvents logs engine events until the feed finishes or the context is
// cancelled.
func drainEvents(ctx context.Context, eng *engine.Engine, feedDone <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-feedDone:
			// Drain whatever is already buffered, then stop.
			for {
				select {
				case ev := <-eng.Events():
					logEvent(ev)
				default:
					return
				}
			}
		case ev := <-eng.Events():
			logEvent(ev)
		}
	}
}

func logEvent(ev engine.Event) {
	switch ev.Kind {
	case engine.EventAlert:
		logger.Warn("alert",
			zap.String("type", string(ev.Alert.Type)),
			zap.String("site", ev.Alert.SiteType),
			zap.Float64("value", ev.Alert.Value),
			zap.Float64("threshold", ev.Alert.Threshold))
	case engine.EventAdaptationTriggered:
		logger.Info("adaptation applied",
			zap.String("site", ev.SiteType),
			zap.String("version", ev.Record.NewStrategy.Version.String()),
			zap.Strings("reasons", ev.Record.Reasons))
	case engine.EventAdaptationError:
		logger.Error("adaptation failed",
			zap.String("site", ev.SiteType),
			zap.String("error", ev.Err))
	case engine.EventHighFailureRate:
		logger.Warn("high failure rate",
			zap.Float64("rate", ev.FailureRate),
			zap.Int("sessions", ev.SessionCount))
	case engine.EventNewDetectionMethods:
		logger.Warn("detection methods observed", zap.Strings("methods", ev.Methods))
	case engine.EventHighRiskPredicted:
		logger.Warn("high risk predicted",
			zap.Float64("predicted_success", ev.Prediction.PredictedSuccessRate),
			zap.Float64("confidence", ev.Prediction.Confidence))
	case engine.EventSessionProcessed:
		logger.Debug("session processed", zap.String("site", ev.SiteType))
	}
}
