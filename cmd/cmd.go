package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli-altsrc/v3/json"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	altsrc "github.com/urfave/cli-altsrc/v3"

	"github.com/travisbrown/archivindex/pkg/otelzerolog"
)

// Version defines the version of the binary, and is meant to be set with ldflags at build time.
//
//nolint:gochecknoglobals
var Version = "dev"

type flagSourcesFn func(configFileKey, envVar string) cli.ValueSourceChain

// New assembles the archivindex command tree: the ingest, serve, search
// and validate subcommands, each wired against the same ambient
// logging/tracing setup established in Before.
func New() *cli.Command {
	var otelShutdown func(context.Context) error

	var configPath string

	flagSources := func(configFileKey, envVar string) cli.ValueSourceChain {
		return cli.NewValueSourceChain(
			toml.TOML(configFileKey, altsrc.NewStringPtrSourcer(&configPath)),
			yaml.YAML(configFileKey, altsrc.NewStringPtrSourcer(&configPath)),
			json.JSON(configFileKey, altsrc.NewStringPtrSourcer(&configPath)),
			cli.EnvVar(envVar),
		)
	}

	return &cli.Command{
		Name:    "archivindex",
		Usage:   "personal web-archive search engine",
		Version: Version,
		After: func(ctx context.Context, _ *cli.Command) error {
			if otelShutdown != nil {
				return otelShutdown(ctx)
			}

			return nil
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			otelResource, err := newResource(ctx, cmd)
			if err != nil {
				return ctx, err
			}

			otelShutdown, err = setupOTelSDK(ctx, cmd, otelResource)
			if err != nil {
				return ctx, err
			}

			logLvl := cmd.String("log-level")

			lvl, err := zerolog.ParseLevel(logLvl)
			if err != nil {
				return ctx, fmt.Errorf("error parsing the log-level %q: %w", logLvl, err)
			}

			var output io.Writer = os.Stdout

			if term.IsTerminal(int(os.Stdout.Fd())) {
				output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
			}

			colURL := cmd.String("otel-grpc-url")
			if colURL != "" {
				otelWriter, err := otelzerolog.NewOtelWriter(ctx, colURL, cmd.Root().Name)
				if err != nil {
					return ctx, err
				}

				output = zerolog.MultiLevelWriter(output, otelWriter)

				sdkShutdown := otelShutdown
				otelShutdown = func(shutdownCtx context.Context) error {
					return errors.Join(otelWriter.Close(shutdownCtx), sdkShutdown(shutdownCtx))
				}
			}

			ctx = zerolog.New(output).
				Level(lvl).
				With().
				Timestamp().
				Logger().
				WithContext(ctx)

			(zerolog.Ctx(ctx)).
				Info().
				Str("otel_grpc_url", colURL).
				Str("log_level", lvl.String()).
				Msg("logger created")

			return ctx, nil
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Enable Open-Telemetry logs, metrics and tracing.",
				Sources: flagSources("opentelemetry.enabled", "OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Set the log level",
				Sources: flagSources("log.level", "LOG_LEVEL"),
				Value:   "info",
				Validator: func(lvl string) error {
					_, err := zerolog.ParseLevel(lvl)

					return err
				},
			},
			&cli.StringFlag{
				Name: "otel-grpc-url",
				Usage: "Configure OpenTelemetry gRPC URL; when set, log lines are also " +
					"sent there over an insecure gRPC connection, whatever the scheme. Traces and metrics are not.",
				Sources: flagSources("opentelemetry.grpc-url", "OTEL_GRPC_URL"),
				Value:   "",
				Validator: func(colURL string) error {
					_, err := url.Parse(colURL)

					return err
				},
			},
			&cli.StringFlag{
				Name:        "config",
				Usage:       "Path to the configuration file (toml, yaml, json)",
				Sources:     cli.EnvVars("ARCHIVINDEX_CONFIG_FILE"),
				Value:       getDefaultConfigPath(),
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:    "catalog-url",
				Usage:   "Catalog database URL (sqlite://, postgres://, mysql://)",
				Sources: flagSources("catalog.url", "ARCHIVINDEX_CATALOG_URL"),
				Value:   "sqlite://archivindex.sqlite",
			},
			&cli.StringFlag{
				Name:    "store-path",
				Usage:   "Path to the content-addressed item store",
				Sources: flagSources("store.path", "ARCHIVINDEX_STORE_PATH"),
				Value:   "./store",
			},
			&cli.BoolFlag{
				Name:    "prometheus-enabled",
				Usage:   "Enable a Prometheus metrics endpoint on the serve command",
				Sources: flagSources("prometheus.enabled", "PROMETHEUS_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "prometheus-addr",
				Usage:   "Address the Prometheus metrics endpoint listens on",
				Sources: flagSources("prometheus.addr", "PROMETHEUS_ADDR"),
				Value:   "127.0.0.1:9090",
			},
		},
		Commands: []*cli.Command{
			ingestCommand(flagSources),
			serveCommand(flagSources),
			searchCommand(flagSources),
			validateCommand(flagSources),
		},
	}
}

// getDefaultConfigPath returns the default path to the config file.
func getDefaultConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		panic(fmt.Sprintf("unable to determine user config directory: %v", err))
	}

	return filepath.Join(configDir, "archivindex", "config.yaml")
}
