// Command merger runs the Merger pipeline of spec.md §4.5/§6: it reads a
// newline-separated stream list, subscribes to each one, and builds a
// time-aligned combined Value every period-sec seconds. Each merged chunk
// is logged with its row count, mismatch count and the configured output
// channel name; it is not published to any transport.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tabjoin/tabjoin/internal/aligner"
	"github.com/tabjoin/tabjoin/internal/config"
	"github.com/tabjoin/tabjoin/internal/errs"
	"github.com/tabjoin/tabjoin/internal/logger"
	"github.com/tabjoin/tabjoin/internal/merger"
	"github.com/tabjoin/tabjoin/internal/metrics"
	"github.com/tabjoin/tabjoin/internal/tabschema"
	"github.com/tabjoin/tabjoin/internal/transport"
	tmqtt "github.com/tabjoin/tabjoin/internal/transport/mqtt"
)

const (
	exitOK                 = 0
	exitBadArguments       = 1
	exitPreparationTimeout = 2
	exitEmissionTimeout    = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("merger", flag.ContinueOnError)
	pvlistPath := fs.String("pvlist", "", "path to newline-separated stream name list (required)")
	periodSec := fs.Float64("period-sec", 0, "emission cadence in seconds (required)")
	pvname := fs.String("pvname", "", "output channel name (required)")
	timeoutSec := fs.Float64("timeout-sec", 0, "laggard/preparation timeout in seconds; 0 waits forever")
	labelSep := fs.String("label-sep", ".", "separator between stream name and label in combined-schema labels")
	colSep := fs.String("column-sep", "_", "separator between stream prefix and column name")
	alignmentUsec := fs.Uint("alignment-usec", 0, "by-window grid size in microseconds; 0 auto-detects")
	byPulse := fs.Bool("by-pulse", true, "use the by-pulse alignment dialect instead of by-window")
	logLevel := fs.String("log-level", "info", "zerolog level")
	logFormat := fs.String("log-format", "json", "log output format: json or console")
	if err := fs.Parse(args); err != nil {
		return exitBadArguments
	}

	streams, err := readPVList(*pvlistPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitBadArguments
	}

	cfg, err := config.LoadMerger(streams, *periodSec, *pvname, *timeoutSec, *labelSep, *colSep, uint32(*alignmentUsec), *logLevel, *logFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitBadArguments
	}

	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get("merger")

	mode := aligner.ByWindow
	if *byPulse {
		mode = aligner.ByPulse
	}
	table := aligner.New(cfg.PVList, aligner.Config{
		LabelSep:   cfg.LabelSep,
		ColSep:     cfg.ColumnSep,
		Mode:       mode,
		WindowUsec: cfg.AlignmentUsec,
	})
	table.SetLogger(log)

	subs, err := buildSubscriptions(cfg.PVList)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitBadArguments
	}

	m := metrics.NewMerger()
	listener := merger.NewListener(table, subs, log, m)

	emit := func(v *tabschema.Value, mismatches []aligner.Mismatch) error {
		log.Info().
			Int("rows", v.RowCount()).
			Int("mismatches", len(mismatches)).
			Str("output_channel", cfg.PVName).
			Msg("emitting merged chunk")
		return nil
	}
	reactor := merger.NewReactor(table, cfg.Period(), cfg.Timeout(), emit, log, m)

	coord := merger.NewCoordinator(listener, reactor, 1*time.Second, log)
	if err := coord.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		switch {
		case errors.Is(err, errs.ErrPreparationTimeout):
			return exitPreparationTimeout
		case errors.Is(err, errs.ErrTimeoutWaitingForUpdates):
			return exitEmissionTimeout
		default:
			return exitBadArguments
		}
	}
	return exitOK
}

func readPVList(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("merger: --pvlist is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("merger: opening pvlist: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("merger: reading pvlist: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("merger: pvlist is empty")
	}
	return names, nil
}

// buildSubscriptions wires each stream to an MQTT subscription when
// TABJOIN_MQTT_BROKER is set in the environment, matching spec.md §6's
// "transport is configured from the environment"; otherwise it errors,
// since the merger has nothing to merge without a real transport.
func buildSubscriptions(streams []string) ([]transport.Subscription, error) {
	broker := os.Getenv("TABJOIN_MQTT_BROKER")
	if broker == "" {
		return nil, fmt.Errorf("merger: TABJOIN_MQTT_BROKER is not set; no transport configured")
	}
	topicPrefix := os.Getenv("TABJOIN_MQTT_TOPIC_PREFIX")

	subs := make([]transport.Subscription, 0, len(streams))
	for _, stream := range streams {
		adapter, err := tmqtt.New(tmqtt.Config{
			Broker: broker,
			Topic:  topicPrefix + stream,
			Stream: stream,
			QoS:    1,
		}, logger.Get("mqtt"))
		if err != nil {
			return nil, err
		}
		subs = append(subs, adapter)
	}
	return subs, nil
}
