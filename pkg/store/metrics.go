package store

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

//nolint:gochecknoglobals
var (
	meter = otel.Meter(otelPackageName)

	saveTotal           metric.Int64Counter
	validateInvalidTotal metric.Int64Counter
)

//nolint:gochecknoinits
func init() {
	var err error

	saveTotal, err = meter.Int64Counter(
		"archivindex_cas_save_total",
		metric.WithDescription("Total number of blobs written to the item store"),
		metric.WithUnit("{blob}"),
	)
	if err != nil {
		panic(err)
	}

	validateInvalidTotal, err = meter.Int64Counter(
		"archivindex_cas_validate_invalid_total",
		metric.WithDescription("Total number of item store entries that failed validation"),
		metric.WithUnit("{blob}"),
	)
	if err != nil {
		panic(err)
	}
}

func recordSave(ctx context.Context) {
	saveTotal.Add(ctx, 1)
}

func recordValidateInvalid(ctx context.Context) {
	validateInvalidTotal.Add(ctx, 1)
}
