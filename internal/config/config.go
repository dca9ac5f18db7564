// Package config loads CLI/environment configuration for the merger and
// writer binaries via github.com/spf13/viper, adapted from
// basekick-labs/arc's internal/config env-prefix-plus-defaults pattern.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "TABJOIN"

// newViper returns a viper.Viper pre-wired to read TABJOIN_-prefixed
// environment variables as overrides for any key registered with
// SetDefault.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Merger is the merger binary's resolved configuration (spec.md §6).
type Merger struct {
	PVList        []string
	PeriodSec     float64
	PVName        string
	TimeoutSec    float64
	LabelSep      string
	ColumnSep     string
	AlignmentUsec uint32
	LogLevel      string
	LogFormat     string
}

// Period returns PeriodSec as a time.Duration.
func (m Merger) Period() time.Duration { return time.Duration(m.PeriodSec * float64(time.Second)) }

// Timeout returns TimeoutSec as a time.Duration; 0 means "wait forever"
// per spec.md §6 and is preserved as exactly 0.
func (m Merger) Timeout() time.Duration { return time.Duration(m.TimeoutSec * float64(time.Second)) }

// LoadMerger resolves Merger configuration from flag-supplied values. A
// set TABJOIN_-prefixed environment variable (e.g. TABJOIN_PERIOD_SEC)
// takes precedence over the flag's value, whether that value was given
// explicitly or is the flag's default.
func LoadMerger(pvlist []string, periodSec float64, pvname string, timeoutSec float64, labelSep, colSep string, alignmentUsec uint32, logLevel, logFormat string) (Merger, error) {
	v := newViper()
	v.SetDefault("period-sec", periodSec)
	v.SetDefault("pvname", pvname)
	v.SetDefault("timeout-sec", timeoutSec)
	v.SetDefault("label-sep", labelSep)
	v.SetDefault("column-sep", colSep)
	v.SetDefault("alignment-usec", alignmentUsec)
	v.SetDefault("log-level", logLevel)
	v.SetDefault("log-format", logFormat)

	cfg := Merger{
		PVList:        pvlist,
		PeriodSec:     v.GetFloat64("period-sec"),
		PVName:        v.GetString("pvname"),
		TimeoutSec:    v.GetFloat64("timeout-sec"),
		LabelSep:      v.GetString("label-sep"),
		ColumnSep:     v.GetString("column-sep"),
		AlignmentUsec: uint32(v.GetUint("alignment-usec")),
		LogLevel:      v.GetString("log-level"),
		LogFormat:     v.GetString("log-format"),
	}
	if len(cfg.PVList) == 0 {
		return Merger{}, fmt.Errorf("config: --pvlist must name at least one stream")
	}
	if cfg.PVName == "" {
		return Merger{}, fmt.Errorf("config: --pvname is required")
	}
	if cfg.PeriodSec <= 0 {
		return Merger{}, fmt.Errorf("config: --period-sec must be positive")
	}
	return cfg, nil
}

// Writer is the writer binary's resolved configuration (spec.md §6).
type Writer struct {
	InputPV       string
	BaseDirectory string
	FilePrefix    string
	RootGroup     string
	TimeoutSec    float64
	MaxDurationSec float64
	MaxSizeMB     uint64
	LabelSep      string
	ColumnSep     string
	LogLevel      string
	LogFormat     string
}

// Timeout returns TimeoutSec as a time.Duration; 0 means "wait forever".
func (w Writer) Timeout() time.Duration { return time.Duration(w.TimeoutSec * float64(time.Second)) }

// MaxDuration returns MaxDurationSec as a time.Duration.
func (w Writer) MaxDuration() time.Duration {
	return time.Duration(w.MaxDurationSec * float64(time.Second))
}

// LoadWriter resolves Writer configuration the same way LoadMerger does.
func LoadWriter(inputPV, baseDir, filePrefix, rootGroup string, timeoutSec, maxDurationSec float64, maxSizeMB uint64, labelSep, colSep, logLevel, logFormat string) (Writer, error) {
	v := newViper()
	v.SetDefault("timeout-sec", timeoutSec)
	v.SetDefault("max-duration-sec", maxDurationSec)
	v.SetDefault("max-size-mb", maxSizeMB)
	v.SetDefault("label-sep", labelSep)
	v.SetDefault("column-sep", colSep)
	v.SetDefault("log-level", logLevel)
	v.SetDefault("log-format", logFormat)

	cfg := Writer{
		InputPV:        inputPV,
		BaseDirectory:  baseDir,
		FilePrefix:     filePrefix,
		RootGroup:      rootGroup,
		TimeoutSec:     v.GetFloat64("timeout-sec"),
		MaxDurationSec: v.GetFloat64("max-duration-sec"),
		MaxSizeMB:      v.GetUint64("max-size-mb"),
		LabelSep:       v.GetString("label-sep"),
		ColumnSep:      v.GetString("column-sep"),
		LogLevel:       v.GetString("log-level"),
		LogFormat:      v.GetString("log-format"),
	}
	if cfg.InputPV == "" {
		return Writer{}, fmt.Errorf("config: --input-pv is required")
	}
	if cfg.BaseDirectory == "" {
		return Writer{}, fmt.Errorf("config: --base-directory is required")
	}
	if cfg.FilePrefix == "" {
		return Writer{}, fmt.Errorf("config: --file-prefix is required")
	}
	if cfg.RootGroup == "" {
		return Writer{}, fmt.Errorf("config: --root-group is required")
	}
	return cfg, nil
}
