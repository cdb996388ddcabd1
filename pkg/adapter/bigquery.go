package adapter

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
)

// BigQueryEngine executes queries against one BigQuery dataset. It
// satisfies the pipeline's QueryEngine seam as the second supported
// backing query engine.
type BigQueryEngine struct {
	client  *bigquery.Client
	dataset string
}

// NewBigQueryEngine creates a BigQuery-backed engine bound to a dataset.
func NewBigQueryEngine(ctx context.Context, projectID, dataset string) (*BigQueryEngine, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client", goerr.V("project", projectID))
	}
	return &BigQueryEngine{client: client, dataset: dataset}, nil
}

func (e *BigQueryEngine) Dialect() string { return "bigquery" }

// Schema describes every table in the bound dataset as pseudo-DDL for
// query generation context.
func (e *BigQueryEngine) Schema(ctx context.Context) (string, error) {
	var sb strings.Builder

	it := e.client.Dataset(e.dataset).Tables(ctx)
	for {
		table, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", goerr.Wrap(err, "failed to list dataset tables", goerr.V("dataset", e.dataset))
		}

		meta, err := table.Metadata(ctx)
		if err != nil {
			return "", goerr.Wrap(err, "failed to get table metadata", goerr.V("table", table.TableID))
		}

		fmt.Fprintf(&sb, "TABLE `%s.%s` (\n", e.dataset, table.TableID)
		for _, field := range meta.Schema {
			fmt.Fprintf(&sb, "  %s %s,\n", field.Name, field.Type)
		}
		sb.WriteString(");\n\n")
	}
	return sb.String(), nil
}

// Execute runs a query and returns all rows as generic maps.
func (e *BigQueryEngine) Execute(ctx context.Context, query string) ([]map[string]any, error) {
	q := e.client.Query(query)
	q.DefaultDatasetID = e.dataset

	job, err := q.Run(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to run query")
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to wait for query completion")
	}
	if status.Err() != nil {
		return nil, goerr.Wrap(status.Err(), "query execution failed")
	}

	it, err := job.Read(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read query result")
	}

	var results []map[string]any
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate query result")
		}

		rowMap := make(map[string]any, len(row))
		for k, v := range row {
			rowMap[k] = v
		}
		results = append(results, rowMap)
	}
	return results, nil
}

func (e *BigQueryEngine) Close() error {
	return e.client.Close()
}
