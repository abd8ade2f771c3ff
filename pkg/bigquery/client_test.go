package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/chryzcode/ycsyh-site/pkg/config"
)

func TestClientOptionsPrioritizesJSON(t *testing.T) {
	gcp := config.GCPConfig{
		CredentialsJSON:        `{"dummy": "value"}`,
		ApplicationCredentials: "/tmp/creds",
	}
	if opts := clientOptions(gcp); len(opts) != 1 {
		t.Fatalf("expected 1 option, got %d", len(opts))
	}
}

func TestClientOptionsEmpty(t *testing.T) {
	if opts := clientOptions(config.GCPConfig{}); len(opts) != 0 {
		t.Fatalf("expected 0 options when no credentials provided, got %d", len(opts))
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "d", SalesTable: "t"}, nil); !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project id error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{SalesTable: "t"}, nil); !errors.Is(err, errDatasetRequired) {
		t.Fatalf("expected dataset error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: "d", SalesTable: " "}, nil); !errors.Is(err, errTableNameRequired) {
		t.Fatalf("expected table error, got %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	if !isNotFound(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusNotFound})) {
		t.Fatal("expected not found")
	}
	if isNotFound(&googleapi.Error{Code: http.StatusForbidden}) {
		t.Fatal("forbidden is not not-found")
	}
}

func TestNilClientInsert(t *testing.T) {
	var c *Client
	if err := c.InsertRows(context.Background(), "sales_events", []any{1}); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
}

func TestSalesTableMetadataPartitionsByOccurredAt(t *testing.T) {
	md := salesTableMetadata()
	if md.TimePartitioning == nil || md.TimePartitioning.Field != "occurred_at" {
		t.Fatalf("expected day partitioning on occurred_at, got %+v", md.TimePartitioning)
	}
	var found bool
	for _, f := range md.Schema {
		if f.Name == md.TimePartitioning.Field {
			found = f.Required
		}
	}
	if !found {
		t.Fatal("partition column must be a required schema field")
	}
}

func TestIsAlreadyExists(t *testing.T) {
	if !isAlreadyExists(&googleapi.Error{Code: http.StatusConflict}) {
		t.Fatal("409 means the table raced into existence")
	}
	if isAlreadyExists(errors.New("boom")) {
		t.Fatal("plain errors carry no status")
	}
}
