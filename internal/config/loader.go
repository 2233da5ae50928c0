package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to setting names when reading the environment,
// e.g. PIPEBENCH_CONCURRENCY or PIPEBENCH_BATCH_SIZE.
const EnvPrefix = "PIPEBENCH"

// Loader builds a Config from flags, environment and an optional config file.
// Flags set explicitly win over the environment, which wins over the file.
type Loader struct{}

var (
	// ErrHelpRequested is returned when the user asked for --help.
	ErrHelpRequested = errors.New("help requested")
	// ErrUsage is returned when the command was invoked without any arguments.
	ErrUsage = errors.New("no arguments given")
)

func NewLoader() *Loader {
	return &Loader{}
}

// Load parses args on a fresh flag set.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}
	if wantsHelp(cmd.Flags()) {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	if len(args) == 0 {
		displayHelp(cmd)
		return nil, ErrUsage
	}
	return l.FromFlags(cmd.Flags(), cmd.Flags().Args())
}

// FromFlags resolves a Config from an already parsed flag set registered
// with RegisterFlags. positional holds the non-flag arguments.
func (Loader) FromFlags(flags *pflag.FlagSet, positional []string) (*Config, error) {
	if len(positional) > 1 {
		return nil, fmt.Errorf("expected a single target URL, got %d arguments", len(positional))
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	configPath := strings.TrimSpace(v.GetString("config"))
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := &Config{
		TargetURL:       strings.TrimSpace(v.GetString("target")),
		Workers:         v.GetInt("workers"),
		Concurrency:     v.GetInt("concurrency"),
		MinBodyBytes:    v.GetInt64("min-body"),
		Timeout:         v.GetDuration("timeout"),
		Rate:            v.GetInt("rate"),
		BatchSize:       v.GetInt("batch-size"),
		TickInterval:    v.GetDuration("tick-interval"),
		ShutdownTimeout: v.GetDuration("shutdown-timeout"),
		Dashboard:       v.GetBool("dashboard"),
		ReportFormat:    ReportFormat(strings.ToLower(strings.TrimSpace(v.GetString("report")))),
		HistoryFile:     strings.TrimSpace(v.GetString("history-file")),
		MetricsAddr:     strings.TrimSpace(v.GetString("metrics-addr")),
		LogLevel:        strings.ToLower(strings.TrimSpace(v.GetString("log-level"))),
		LogFailures:     v.GetBool("log-failures"),
		ConfigFile:      configPath,
		Thresholds:      v.GetStringSlice("threshold"),
		Tracing:         tracingFromViper(v),
	}
	if len(positional) == 1 {
		cfg.TargetURL = strings.TrimSpace(positional[0])
	}
	return cfg, nil
}

// LoadWorker reads a WorkerConfig from a flag set registered with
// RegisterWorkerFlags. Workers take their settings from flags only; the
// coordinator has already resolved files and environment.
func (Loader) LoadWorker(flags *pflag.FlagSet) (*WorkerConfig, error) {
	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}
	wc := &WorkerConfig{
		TargetURL:    strings.TrimSpace(v.GetString("target")),
		Concurrency:  v.GetInt("concurrency"),
		MinBodyBytes: v.GetInt64("min-body"),
		Timeout:      v.GetDuration("timeout"),
		Rate:         v.GetInt("rate"),
		BatchSize:    v.GetInt("batch-size"),
		WorkerID:     v.GetInt("worker-id"),
		RunID:        v.GetString("run-id"),
		LogLevel:     strings.ToLower(v.GetString("log-level")),
		LogFailures:  v.GetBool("log-failures"),
		Tracing:      tracingFromViper(v),
	}
	if err := wc.Validate(); err != nil {
		return nil, err
	}
	return wc, nil
}

// Args renders the worker settings as flags for the worker subcommand.
func (w WorkerConfig) Args() []string {
	args := []string{
		"--target=" + w.TargetURL,
		"--concurrency=" + strconv.Itoa(w.Concurrency),
		"--rate=" + strconv.Itoa(w.Rate),
		"--min-body=" + strconv.FormatInt(w.MinBodyBytes, 10),
		"--timeout=" + w.Timeout.String(),
		"--batch-size=" + strconv.Itoa(w.BatchSize),
		"--worker-id=" + strconv.Itoa(w.WorkerID),
		"--run-id=" + w.RunID,
		"--log-level=" + w.LogLevel,
		"--log-failures=" + strconv.FormatBool(w.LogFailures),
	}
	if w.Tracing.Enabled() {
		args = append(args,
			"--otlp-endpoint="+w.Tracing.Endpoint,
			"--otlp-protocol="+w.Tracing.Protocol,
			"--otlp-insecure="+strconv.FormatBool(w.Tracing.Insecure),
			"--otlp-service-name="+w.Tracing.ServiceName,
			"--otlp-sample-rate="+strconv.FormatFloat(w.Tracing.SampleRate, 'g', -1, 64),
		)
	}
	return args
}

func tracingFromViper(v *viper.Viper) TracingConfig {
	return TracingConfig{
		Endpoint:    strings.TrimSpace(v.GetString("otlp-endpoint")),
		Protocol:    strings.ToLower(strings.TrimSpace(v.GetString("otlp-protocol"))),
		Insecure:    v.GetBool("otlp-insecure"),
		ServiceName: v.GetString("otlp-service-name"),
		SampleRate:  v.GetFloat64("otlp-sample-rate"),
	}
}

func wantsHelp(flags *pflag.FlagSet) bool {
	helpFlag := flags.Lookup("help")
	if helpFlag == nil {
		return false
	}
	ok, err := strconv.ParseBool(helpFlag.Value.String())
	return err == nil && ok
}

func displayHelp(cmd *cobra.Command) {
	_ = cmd.Help()
}

