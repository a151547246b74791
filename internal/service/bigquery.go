package service

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/asktennis/asktennis/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// BigQueryStore is the RelationalStore used with store_driver=bigquery.
// Tables are resolved against a single dataset.
type BigQueryStore struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	location  string
}

// NewBigQueryStore creates a new BigQuery client
func NewBigQueryStore(ctx context.Context, projectID, credentialsFile, datasetID, location string) (*BigQueryStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("bigquery store: gcp_project_id is empty")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	if location != "" {
		client.Location = location
	}

	return &BigQueryStore{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		location:  location,
	}, nil
}

// Close releases the BigQuery client
func (s *BigQueryStore) Close() error {
	return s.client.Close()
}

// Ping verifies BigQuery connectivity
func (s *BigQueryStore) Ping(ctx context.Context) error {
	q := s.client.Query("SELECT 1")
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("query run: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("job wait: %w", err)
	}
	return status.Err()
}

var rePositional = regexp.MustCompile(`\$(\d+)`)

// namedParams rewrites $1, $2, ... into @p1, @p2, ... and builds the
// matching BigQuery parameters.
func namedParams(statement string, params []any) (string, []bigquery.QueryParameter) {
	out := rePositional.ReplaceAllString(statement, "@p$1")
	qp := make([]bigquery.QueryParameter, len(params))
	for i, p := range params {
		qp[i] = bigquery.QueryParameter{Name: fmt.Sprintf("p%d", i+1), Value: p}
	}
	return out, qp
}

// Query runs statement with positional params bound as named parameters.
func (s *BigQueryStore) Query(ctx context.Context, statement string, params []any) (*models.ResultSet, error) {
	sql, qp := namedParams(statement, params)

	q := s.client.Query(sql)
	q.Parameters = qp
	q.DefaultProjectID = s.projectID
	q.DefaultDatasetID = s.datasetID

	job, err := q.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("job wait: %w", err)
	}
	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	it, err := job.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("job read: %w", err)
	}

	rs := &models.ResultSet{Columns: []string{}, Rows: []models.Row{}}
	first := true
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		if first && it.Schema != nil {
			for _, f := range it.Schema {
				rs.Columns = append(rs.Columns, f.Name)
			}
			first = false
		}

		r := make(models.Row, len(row))
		for k, v := range row {
			r[k] = bqValue(v)
		}
		rs.Rows = append(rs.Rows, r)
	}
	return rs, nil
}

func bqValue(v bigquery.Value) models.Value {
	switch x := v.(type) {
	case civil.Date:
		return models.DateValue(x.In(time.UTC))
	case civil.DateTime:
		return models.DateValue(x.In(time.UTC))
	case *big.Rat:
		if x == nil {
			return models.NullValue()
		}
		f, _ := x.Float64()
		return models.NumberValue(f)
	default:
		return models.ValueOf(v)
	}
}
