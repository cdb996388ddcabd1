package pipeline

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/adapter"
	"github.com/neuraly-ai/neuraly/pkg/model"
)

const bigqueryScheme = "bigquery://"

// NewEngine selects and constructs a query engine from a connection
// descriptor. The descriptor scheme is the configuration tag:
//
//	bigquery://<project>/<dataset>  -> BigQuery engine
//	user:pass@tcp(host:port)/db     -> MySQL engine (default)
func NewEngine(ctx context.Context, connStr string) (QueryEngine, error) {
	if rest, ok := strings.CutPrefix(connStr, bigqueryScheme); ok {
		project, dataset, found := strings.Cut(rest, "/")
		if !found || project == "" || dataset == "" {
			return nil, goerr.Wrap(model.ErrInvalidArgument,
				"bigquery connection must be bigquery://<project>/<dataset>")
		}
		return adapter.NewBigQueryEngine(ctx, project, dataset)
	}

	return adapter.NewMySQLEngine(ctx, connStr)
}
