// Package bigquery opens the analytics dataset and streams sales rows into it.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/chryzcode/ycsyh-site/pkg/config"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// SalesSchema is the column layout of the sales facts table. The worker's
// row type saves exactly these names.
var SalesSchema = bigquery.Schema{
	{Name: "event_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "event_type", Type: bigquery.StringFieldType, Required: true},
	{Name: "occurred_at", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "order_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "beat_id", Type: bigquery.StringFieldType},
	{Name: "beat_title", Type: bigquery.StringFieldType},
	{Name: "license_type", Type: bigquery.StringFieldType},
	{Name: "status", Type: bigquery.StringFieldType},
	{Name: "amount_cents", Type: bigquery.IntegerFieldType},
	{Name: "revenue_cents", Type: bigquery.IntegerFieldType},
	{Name: "currency", Type: bigquery.StringFieldType},
	{Name: "trigger", Type: bigquery.StringFieldType},
	{Name: "payment_intent_id", Type: bigquery.StringFieldType},
	{Name: "beat_sold", Type: bigquery.BooleanFieldType},
	{Name: "failure_reason", Type: bigquery.StringFieldType},
	{Name: "actor", Type: bigquery.StringFieldType},
	{Name: "payload", Type: bigquery.JSONFieldType},
}

type Client struct {
	bq         *bigquery.Client
	dataset    *bigquery.Dataset
	salesTable string
}

// NewClient opens the dataset and makes sure the sales table is there. A
// missing dataset is a deploy error; a missing table is created, partitioned
// by day on occurred_at.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	dataset := strings.TrimSpace(cfg.Dataset)
	table := strings.TrimSpace(cfg.SalesTable)
	switch {
	case project == "":
		return nil, errProjectIDRequired
	case dataset == "":
		return nil, errDatasetRequired
	case table == "":
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, project, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("open bigquery: %w", err)
	}
	c := &Client{bq: bq, dataset: bq.Dataset(dataset), salesTable: table}

	created, err := c.prepare(ctx)
	if err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"dataset":       dataset,
			"table":         table,
			"table_created": created,
		}), "bigquery.ready")
	}
	return c, nil
}

// clientOptions prefers inline credentials over a key file. With neither,
// the library falls back to application default credentials.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if js := strings.TrimSpace(gcp.CredentialsJSON); js != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(js))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func (c *Client) prepare(ctx context.Context) (bool, error) {
	if c == nil || c.dataset == nil {
		return false, errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return false, fmt.Errorf("bigquery dataset %q does not exist", c.dataset.DatasetID)
		}
		return false, fmt.Errorf("read dataset %q: %w", c.dataset.DatasetID, err)
	}

	table := c.dataset.Table(c.salesTable)
	_, err := table.Metadata(ctx)
	if err == nil {
		return false, nil
	}
	if !isNotFound(err) {
		return false, fmt.Errorf("read table %q: %w", c.salesTable, err)
	}
	if err := table.Create(ctx, salesTableMetadata()); err != nil && !isAlreadyExists(err) {
		return false, fmt.Errorf("create table %q: %w", c.salesTable, err)
	}
	return true, nil
}

func salesTableMetadata() *bigquery.TableMetadata {
	return &bigquery.TableMetadata{
		Description: "YCSYH order lifecycle events",
		Schema:      SalesSchema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "occurred_at",
		},
		Clustering: &bigquery.Clustering{Fields: []string{"event_type", "license_type"}},
	}
}

// Ping checks the dataset and table are still readable. Used by /readyz.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	_, err := c.dataset.Table(c.salesTable).Metadata(ctx)
	return err
}

func (c *Client) SalesTable() string {
	if c == nil {
		return ""
	}
	return c.salesTable
}

// InsertRows streams rows into table. Rows that implement bigquery.ValueSaver
// choose their own insert IDs, which BigQuery uses for best-effort dedupe.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func isNotFound(err error) bool {
	return apiStatus(err) == http.StatusNotFound
}

func isAlreadyExists(err error) bool {
	return apiStatus(err) == http.StatusConflict
}

func apiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
