package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/chryzcode/ycsyh-site/internal/analytics/types"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
	"github.com/chryzcode/ycsyh-site/pkg/outbox/registry"
)

var ErrUnsupportedEventType = errors.New("unsupported sales event type")

// Writer delivers BigQuery rows produced by the router.
type Writer interface {
	InsertSale(ctx context.Context, row types.SalesEventRow) error
}

// Router decodes order events and turns each into one sales row.
type Router struct {
	decoder *registry.DecoderRegistry
	writer  Writer
	logg    *logger.Logger
}

func NewRouter(decoder *registry.DecoderRegistry, writer Writer, logg *logger.Logger) (*Router, error) {
	if decoder == nil {
		return nil, errors.New("decoder registry is required")
	}
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Router{decoder: decoder, writer: writer, logg: logg}, nil
}

func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	if !envelope.EventType.IsValid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	version := envelope.Version
	if version == 0 {
		version = 1
	}
	payload, err := r.decoder.Decode(envelope.EventType, version, envelope.Payload)
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}

	row, err := BuildSalesRow(envelope, payload)
	if err != nil {
		return err
	}

	logCtx := r.logg.WithFields(ctx, map[string]any{
		"event_type":   envelope.EventType,
		"order_id":     row.OrderID,
		"license_type": row.LicenseType,
	})
	if err := r.writer.InsertSale(logCtx, row); err != nil {
		r.logg.Error(logCtx, "analytics.sales_row.insert_failed", err)
		return err
	}
	r.logg.Info(logCtx, "analytics.sales_row.inserted")
	return nil
}
