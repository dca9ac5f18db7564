// Command writer runs the Writer/Rotator pipeline of spec.md §4.4/§6: it
// subscribes to a single merged-output channel and appends every
// received Value to a rotating sequence of columnar archive files.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tabjoin/tabjoin/internal/archive"
	"github.com/tabjoin/tabjoin/internal/config"
	"github.com/tabjoin/tabjoin/internal/errs"
	"github.com/tabjoin/tabjoin/internal/logger"
	"github.com/tabjoin/tabjoin/internal/metrics"
	"github.com/tabjoin/tabjoin/internal/transport"
	tmqtt "github.com/tabjoin/tabjoin/internal/transport/mqtt"
)

const (
	exitOK                  = 0
	exitBadArguments        = 1
	exitTransportDisconnect = 2
	exitUnexpectedError     = 1
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("writer", flag.ContinueOnError)
	inputPV := fs.String("input-pv", "", "merged-output channel name to subscribe to (required)")
	baseDir := fs.String("base-directory", "", "archive root directory (required)")
	filePrefix := fs.String("file-prefix", "", "archive filename prefix (required)")
	rootGroup := fs.String("root-group", "", "archive root group name (required)")
	timeoutSec := fs.Float64("timeout-sec", 0, "terminate after this many seconds with no updates; 0 waits forever")
	maxDurationSec := fs.Float64("max-duration-sec", 0, "rotate after this many seconds; 0 = unlimited")
	maxSizeMB := fs.Uint64("max-size-mb", 0, "rotate after the current file reaches this size; 0 = unlimited")
	labelSep := fs.String("label-sep", ".", "separator between stream name and label")
	colSep := fs.String("column-sep", "_", "separator between stream prefix and column name")
	logLevel := fs.String("log-level", "info", "zerolog level")
	logFormat := fs.String("log-format", "json", "log output format: json or console")
	if err := fs.Parse(args); err != nil {
		return exitBadArguments
	}

	cfg, err := config.LoadWriter(*inputPV, *baseDir, *filePrefix, *rootGroup, *timeoutSec, *maxDurationSec, *maxSizeMB, *labelSep, *colSep, *logLevel, *logFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitBadArguments
	}

	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get("writer")

	broker := os.Getenv("TABJOIN_MQTT_BROKER")
	if broker == "" {
		fmt.Fprintln(os.Stderr, "writer: TABJOIN_MQTT_BROKER is not set; no transport configured")
		return exitBadArguments
	}
	topicPrefix := os.Getenv("TABJOIN_MQTT_TOPIC_PREFIX")
	sub, err := tmqtt.New(tmqtt.Config{
		Broker: broker,
		Topic:  topicPrefix + cfg.InputPV,
		Stream: cfg.InputPV,
		QoS:    1,
	}, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitBadArguments
	}
	defer sub.Close()

	rotator := archive.NewRotator(cfg.BaseDirectory, cfg.FilePrefix, cfg.RootGroup, cfg.InputPV, cfg.LabelSep, cfg.ColumnSep,
		archive.RotationPolicy{MaxDuration: cfg.MaxDuration(), MaxSizeMB: cfg.MaxSizeMB}, log)
	m := metrics.NewWriter()
	rotator.SetMetrics(m)
	rotator.Start()
	defer rotator.Stop()

	return serve(sub, rotator, m, log, cfg.Timeout())
}

// serve drains sub until SIGINT (exit 0), transport disconnect (exit 2),
// idle timeout (exit 1), or an unexpected write error (exit 1), per
// spec.md §6's Writer CLI termination rules.
func serve(sub transport.Subscription, rotator *archive.Rotator, m *metrics.Writer, log zerolog.Logger, idleTimeout time.Duration) int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	notifyCh := make(chan struct{}, 1)
	sub.Arm(func() {
		select {
		case notifyCh <- struct{}{}:
		default:
		}
	})

	var idleC <-chan time.Time
	if idleTimeout > 0 {
		t := time.NewTimer(idleTimeout)
		defer t.Stop()
		idleC = t.C
	}

	for {
		select {
		case <-sigCh:
			log.Info().Msg("received interrupt, shutting down")
			return exitOK
		case <-idleC:
			log.Error().Msg("no updates received within timeout")
			return exitUnexpectedError
		case <-notifyCh:
			code, terminal := drainOnce(sub, rotator, m, log)
			if terminal {
				return code
			}
			if idleTimeout > 0 {
				// re-arm the idle watchdog after a productive drain
				idleC = time.After(idleTimeout)
			}
		}
	}
}

// drainOnce pops every currently pending value from sub and writes it to
// rotator, returning (exit code, true) if the subscription is done.
func drainOnce(sub transport.Subscription, rotator *archive.Rotator, m *metrics.Writer, log zerolog.Logger) (int, bool) {
	for {
		v, ev, err := sub.PopValue()
		if errors.Is(err, io.EOF) {
			return exitOK, true
		}
		if errors.Is(err, errs.ErrTransportDisconnect) {
			log.Error().Err(err).Msg("transport disconnected")
			return exitTransportDisconnect, true
		}
		if err != nil {
			log.Error().Err(err).Msg("unexpected subscription error")
			return exitUnexpectedError, true
		}
		if v == nil {
			if ev == transport.EventDisconnected {
				log.Error().Msg("transport disconnected")
				return exitTransportDisconnect, true
			}
			return exitOK, false
		}
		if err := rotator.Write(v); err != nil {
			m.WriteErrors.Add(1)
			log.Error().Err(err).Msg("failed to write row to archive")
			return exitUnexpectedError, true
		}
		m.RowsAppended.Add(int64(v.RowCount()))
	}
}
