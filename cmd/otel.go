package cmd

import (
	"context"

	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/travisbrown/archivindex/pkg/otel"
	"github.com/travisbrown/archivindex/pkg/telemetry"
)

func newResource(ctx context.Context, cmd *cli.Command) (*resource.Resource, error) {
	return telemetry.NewResource(ctx, cmd.Root().Name, Version)
}

// setupOTelSDK wires the command's otel-enabled/otel-grpc-url flags into
// the package-level SDK bootstrap.
func setupOTelSDK(
	ctx context.Context,
	cmd *cli.Command,
	otelResource *resource.Resource,
) (func(context.Context) error, error) {
	return otel.SetupOTelSDK(ctx, cmd.Bool("otel-enabled"), cmd.String("otel-grpc-url"), otelResource)
}
