// Command mofa-models downloads, verifies, lists, and removes the voice
// model assets used by the MoFA voice assistant.
//
// Configuration is read from ~/.config/mofa-models/config.toml (see
// "mofa-models config init"). Environment variables:
//   - MOFA_MODELS_DIR: base directory of every asset family
//   - PRIMESPEECH_MODEL_DIR, KOKORO_MODEL_DIR, ASR_MODELS_DIR: family roots
//   - HF_ENDPOINT, HF_TOKEN: model hub endpoint and access token
package main

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	models "github.com/mofa-studio/models"
	"github.com/mofa-studio/models/internal/config"
	"github.com/mofa-studio/models/internal/logging"
)

// CLI exit codes.
const (
	// ExitSuccess indicates the operation completed successfully.
	ExitSuccess = 0

	// ExitFailure indicates an unresolved failure of any kind.
	ExitFailure = 1
)

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	flags := &rootFlags{}
	recorder := models.NewPromRecorder("mofa_models")
	var metricsPath string

	cmd := models.NewCommandWithSetup(func(cmd *cobra.Command) (models.Config, []models.ManagerOption, error) {
		cfg, _, _, err := config.Load(flags.configPath)
		if err != nil {
			return models.Config{}, nil, err
		}
		metricsPath = cfg.Metrics.Textfile

		level, format := cfg.Logging.Level, cfg.Logging.Format
		if flags.logLevel != "" {
			level = flags.logLevel
		}
		if flags.logFormat != "" {
			format = flags.logFormat
		}
		logger, err := logging.New(logging.Options{Level: level, Format: format, Output: cmd.ErrOrStderr()})
		if err != nil {
			return models.Config{}, nil, err
		}

		mcfg := models.Config{
			AppName:     models.DefaultAppName,
			DataDir:     cfg.Storage.BaseDir,
			FamilyDirs:  cfg.Storage.Families,
			Thresholds:  cfg.ThresholdBytes(),
			Concurrency: cfg.Download.Concurrency,
		}
		opts := []models.ManagerOption{
			models.WithLogger(logger),
			models.WithMetrics(recorder),
			models.WithHub(cfg.Hub.Endpoint, cfg.Hub.Token),
			models.WithHTTPClient(newHTTPClient(time.Duration(cfg.Hub.TimeoutSeconds) * time.Second)),
			models.WithLockTimeout(time.Duration(cfg.Download.LockTimeoutSeconds) * time.Second),
		}
		return mcfg, opts, nil
	})
	cmd.Use = "mofa-models"
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Configuration file (default ~/.config/mofa-models/config.toml)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log format: console, json")
	cmd.AddCommand(configCmd(flags))
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)

	if metricsPath != "" {
		if werr := recorder.WriteTextfile(metricsPath); werr != nil {
			fmt.Fprintf(os.Stderr, "Warning: write metrics: %v\n", werr)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitFailure
	}
	return ExitSuccess
}

// newHTTPClient bounds the wait for response headers only, so large
// transfers are limited by the command context alone.
func newHTTPClient(headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: transport}
}

func configCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Manage the configuration file",
		Annotations: map[string]string{models.AnnotationSkipManager: "true"},
	}

	cmd.AddCommand(&cobra.Command{
		Use:         "init [path]",
		Short:       "Write a sample configuration file",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{models.AnnotationSkipManager: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				var err error
				if path, err = config.DefaultConfigPath(); err != nil {
					return err
				}
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "show",
		Short:       "Print the effective configuration",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{models.AnnotationSkipManager: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			source := path
			if !exists {
				source += " (not found, defaults)"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config:       %s\n", source)
			fmt.Fprintf(out, "base_dir:     %s\n", orDefault(cfg.Storage.BaseDir, "(default)"))
			for _, family := range slices.Sorted(maps.Keys(cfg.Storage.Families)) {
				fmt.Fprintf(out, "family %-6s %s\n", family+":", cfg.Storage.Families[family])
			}
			fmt.Fprintf(out, "hub:          %s\n", cfg.Hub.Endpoint)
			token := "(none)"
			if cfg.Hub.Token != "" {
				token = "(set)"
			}
			fmt.Fprintf(out, "token:        %s\n", token)
			fmt.Fprintf(out, "concurrency:  %d\n", cfg.Download.Concurrency)
			fmt.Fprintf(out, "logging:      %s/%s\n", cfg.Logging.Level, cfg.Logging.Format)
			return nil
		},
	})
	return cmd
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
