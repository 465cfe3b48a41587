package insights

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
)

type AthenaClient interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
}

type MetricsQueryOptions struct {
	Database       string
	Table          string
	Workgroup      string
	OutputLocation string
	LookbackDays   int
	MaxWait        time.Duration
	PollInterval   time.Duration
}

// MetricsFetcher reads a shop's recent daily totals back out of the
// analytics lake so the AI flows can cite real history.
type MetricsFetcher struct {
	Client AthenaClient
	Opts   MetricsQueryOptions
}

// RecentMetrics returns a prompt-ready block of the shop's recent daily
// revenue and order counts, newest day last. Returns "" when the shop has
// no rows yet.
func (f *MetricsFetcher) RecentMetrics(ctx context.Context, shopDomain string) (string, error) {
	opt := f.Opts
	if strings.TrimSpace(opt.Database) == "" || strings.TrimSpace(opt.OutputLocation) == "" {
		return "", nil
	}
	if opt.Table == "" {
		opt.Table = "sales_daily_metrics"
	}
	if opt.Workgroup == "" {
		opt.Workgroup = "primary"
	}
	if opt.LookbackDays <= 0 {
		opt.LookbackDays = 30
	}
	if opt.MaxWait == 0 {
		opt.MaxWait = 20 * time.Second
	}
	if opt.PollInterval == 0 {
		opt.PollInterval = 700 * time.Millisecond
	}

	// shop_id is a partition value we wrote ourselves, but quoting still
	// goes through a strict escape.
	sql := fmt.Sprintf(
		`SELECT metric_date, net_revenue, order_count FROM %s WHERE shop_id = '%s' AND dt >= date_add('day', -%d, current_date) ORDER BY metric_date ASC LIMIT %d`,
		opt.Table, escapeAthenaString(shopDomain), opt.LookbackDays, opt.LookbackDays+5,
	)

	rows, err := f.runQuery(ctx, sql, opt)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}

	var b strings.Builder
	for _, r := range rows {
		if len(r) < 3 {
			continue
		}
		fmt.Fprintf(&b, "%s: revenue %s, orders %s\n", r[0], r[1], r[2])
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// runQuery starts the query, polls to completion, and returns data rows
// as raw string slices. The header row Athena prepends is dropped.
func (f *MetricsFetcher) runQuery(ctx context.Context, sql string, opt MetricsQueryOptions) ([][]string, error) {
	startOut, err := f.Client.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(sql),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{
			Database: aws.String(opt.Database),
		},
		ResultConfiguration: &athenatypes.ResultConfiguration{
			OutputLocation: aws.String(opt.OutputLocation),
		},
		WorkGroup: aws.String(opt.Workgroup),
	})
	if err != nil {
		return nil, fmt.Errorf("athena StartQueryExecution: %w", err)
	}
	qid := aws.ToString(startOut.QueryExecutionId)

	deadline := time.Now().Add(opt.MaxWait)
	for {
		getOut, err := f.Client.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(qid),
		})
		if err != nil {
			return nil, fmt.Errorf("athena GetQueryExecution: %w", err)
		}
		state := getOut.QueryExecution.Status.State
		if state == athenatypes.QueryExecutionStateSucceeded {
			break
		}
		if state == athenatypes.QueryExecutionStateFailed || state == athenatypes.QueryExecutionStateCancelled {
			return nil, fmt.Errorf("athena %s: %s (qid=%s)", state, aws.ToString(getOut.QueryExecution.Status.StateChangeReason), qid)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("athena query timed out (qid=%s)", qid)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opt.PollInterval):
		}
	}

	resOut, err := f.Client.GetQueryResults(ctx, &athena.GetQueryResultsInput{
		QueryExecutionId: aws.String(qid),
		MaxResults:       aws.Int32(100),
	})
	if err != nil {
		return nil, fmt.Errorf("athena GetQueryResults: %w", err)
	}

	var rows [][]string
	for i, r := range resOut.ResultSet.Rows {
		if i == 0 {
			continue // header row
		}
		row := make([]string, 0, len(r.Data))
		for _, d := range r.Data {
			row = append(row, aws.ToString(d.VarCharValue))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func escapeAthenaString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
