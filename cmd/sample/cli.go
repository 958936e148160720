package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bjaus/endpoint/telemetry"
)

const logScope = "github.com/bjaus/endpoint/cmd/sample"

// settings are resolved from flags, SAMPLE_* environment variables and an
// optional config file, in that order of precedence.
type settings struct {
	Addr      string  `mapstructure:"addr"`
	Telemetry string  `mapstructure:"telemetry"`
	LogLevel  string  `mapstructure:"log_level"`
	LogFormat string  `mapstructure:"log_format"`
	Rate      float64 `mapstructure:"rate"`
	Burst     int     `mapstructure:"burst"`
	Format    string  `mapstructure:"format"`
	Output    string  `mapstructure:"output"`
}

// flagKeys maps flag names to settings keys.
var flagKeys = map[string]string{
	"addr":       "addr",
	"telemetry":  "telemetry",
	"log-level":  "log_level",
	"log-format": "log_format",
	"rate":       "rate",
	"burst":      "burst",
	"format":     "format",
	"output":     "output",
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sample",
		Short:         "Sample users API built on endpoint",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Config file path (YAML, JSON or TOML)")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")

	cmd.AddCommand(newServeCmd(), newSpecCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), s)
		},
	}
	cmd.Flags().String("addr", ":8080", "Listen address")
	cmd.Flags().String("telemetry", "", "Telemetry config file (YAML)")
	cmd.Flags().Float64("rate", 5, "Create requests per second per caller")
	cmd.Flags().Int("burst", 10, "Create request burst per caller")
	return cmd
}

func newSpecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Print the OpenAPI document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			return writeSpec(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().String("format", "json", "Output format (json, yaml)")
	cmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	return cmd
}

func loadSettings(cmd *cobra.Command) (*settings, error) {
	v := viper.New()
	v.SetDefault("addr", ":8080")
	v.SetDefault("telemetry", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("rate", 5.0)
	v.SetDefault("burst", 10)
	v.SetDefault("format", "json")
	v.SetDefault("output", "")

	v.SetEnvPrefix("SAMPLE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &s, nil
}

func serve(ctx context.Context, s *settings) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tcfg, err := loadTelemetry(s.Telemetry)
	if err != nil {
		return err
	}
	providers, err := telemetry.Setup(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, "telemetry shutdown:", err)
		}
	}()

	logger := newLogger(os.Stderr, s, providers)
	slog.SetDefault(logger)

	r := newRouter(appConfig{
		Logger:    logger,
		Providers: providers,
		Store:     newUserStore(),
		Keys:      demoKeys,
		Rate:      s.Rate,
		Burst:     s.Burst,
	})

	logger.Info("starting server", "addr", s.Addr, "docs", "/docs", "telemetry", tcfg.IsEnabled())
	if err := r.ListenAndServe(ctx, s.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// loadTelemetry reads the telemetry file. Without one, defaults and the
// environment still apply.
func loadTelemetry(path string) (*telemetry.Config, error) {
	if path == "" {
		return telemetry.Parse([]byte("{}"))
	}
	return telemetry.Load(path)
}

func newLogger(w io.Writer, s *settings, p *telemetry.Providers) *slog.Logger {
	if p != nil && p.Logger != nil {
		return slog.New(telemetry.NewLogHandler(p.Logger, logScope))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(s.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func writeSpec(stdout io.Writer, s *settings) (err error) {
	r := newRouter(appConfig{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:  newUserStore(),
		Keys:   demoKeys,
		Rate:   s.Rate,
		Burst:  s.Burst,
	})

	w := stdout
	if s.Output != "" {
		f, ferr := os.Create(s.Output) //nolint:gosec // user-provided CLI flag
		if ferr != nil {
			return ferr
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		w = f
	}

	switch strings.ToLower(s.Format) {
	case "json":
		return r.WriteSpec(w)
	case "yaml", "yml":
		return r.WriteSpecYAML(w)
	default:
		return fmt.Errorf("unknown format %q", s.Format)
	}
}
