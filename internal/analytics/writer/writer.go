// Package writer streams sales_events rows into BigQuery.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/chryzcode/ycsyh-site/internal/analytics/types"
	pkgbigquery "github.com/chryzcode/ycsyh-site/pkg/bigquery"
)

type Config struct {
	SalesTable string
	// BatchSize rows are buffered before an insert. The sales consumer uses 1
	// so a Pub/Sub ack always means the row reached BigQuery.
	BatchSize int
	Retry     RetryPolicy
}

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 250 * time.Millisecond
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = max(2*time.Second, p.InitialBackoff)
	}
	return p
}

func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.InitialBackoff)
	b = retry.WithCappedDuration(p.MaximumBackoff, b)
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

type inserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

type SalesWriter struct {
	bq        inserter
	table     string
	batchSize int
	policy    RetryPolicy

	mu      sync.Mutex
	pending []types.SalesEventRow
}

func New(client *pkgbigquery.Client, cfg Config) (*SalesWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	return newSalesWriter(client, cfg)
}

func newSalesWriter(bq inserter, cfg Config) (*SalesWriter, error) {
	table := strings.TrimSpace(cfg.SalesTable)
	if table == "" {
		return nil, errors.New("sales table required")
	}
	return &SalesWriter{
		bq:        bq,
		table:     table,
		batchSize: max(cfg.BatchSize, 1),
		policy:    cfg.Retry.withDefaults(),
	}, nil
}

// InsertSale queues row and writes the batch once it is full. On error the
// batch stays queued and is retried by the next InsertSale or Flush.
func (w *SalesWriter) InsertSale(ctx context.Context, row types.SalesEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, row)
	if len(w.pending) < w.batchSize {
		return nil
	}
	return w.drain(ctx)
}

func (w *SalesWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drain(ctx)
}

func (w *SalesWriter) drain(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	rows := make([]any, 0, len(w.pending))
	for i := range w.pending {
		rows = append(rows, &w.pending[i])
	}

	err := retry.Do(ctx, w.policy.backoff(), func(ctx context.Context) error {
		err := w.bq.InsertRows(ctx, w.table, rows)
		if err != nil && transient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(rows), w.table, err)
	}
	w.pending = w.pending[:0]
	return nil
}

// transient reports whether every failure inside err is worth retrying. A
// partial insert with one bad row is permanent.
func transient(err error) bool {
	inner := unwrapInsertErrors(err)
	if inner != nil {
		if len(inner) == 0 {
			return false
		}
		for _, e := range inner {
			if !transient(e) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusRequestTimeout, http.StatusTooManyRequests,
			http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal,
			codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

// unwrapInsertErrors flattens the BigQuery multi-error types. A nil result
// means err is not one of them.
func unwrapInsertErrors(err error) []error {
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return multi
	}
	var putErr cbigquery.PutMultiError
	if errors.As(err, &putErr) {
		out := make([]error, 0, len(putErr))
		for _, rowErr := range putErr {
			out = append(out, rowErr.Errors)
		}
		return out
	}
	var rowErr *cbigquery.RowInsertionError
	if errors.As(err, &rowErr) {
		return rowErr.Errors
	}
	return nil
}

// EncodeJSON converts an event payload into a BigQuery JSON column value.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = encoded
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
