package etl

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"

	"korawallet/internal/shopify"
	"korawallet/internal/store"
)

// SalesRow matches the Glue table columns. dt and shop_id are partition
// keys carried in the object key, not row columns.
type SalesRow struct {
	MetricDate string  `parquet:"name=metric_date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"` // YYYY-MM-DD
	NetRevenue float64 `parquet:"name=net_revenue, type=DOUBLE"`
	OrderCount int64   `parquet:"name=order_count, type=INT64"`
	Currency   string  `parquet:"name=currency, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
}

type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type GlueClient interface {
	GetTable(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error)
}

type AthenaClient interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
}

type ShopSource interface {
	ListDomains(ctx context.Context) ([]string, error)
	GetByDomain(ctx context.Context, domain string) (*store.ShopRecord, error)
}

type OrderSource interface {
	GetDailyTotals(ctx context.Context, shopDomain, accessToken string, since time.Time) (map[string]shopify.DailyTotal, error)
}

type TokenDecrypter interface {
	Decrypt(ciphertext string) (string, error)
}

type SnapshotOptions struct {
	Bucket    string
	Prefix    string // default "sales_daily_metrics/"
	DaysBack  int    // days including today, default 1
	Database  string // Glue database; empty skips table discovery and repair
	Table     string
	Workgroup string
	Output    string // Athena result location, s3://...
}

// SalesSnapshot aggregates per-day order totals for every installed shop
// and lands them as parquet partitions in the analytics lake.
type SalesSnapshot struct {
	Shops   ShopSource
	Orders  OrderSource
	Tokens  TokenDecrypter
	S3      S3Client
	Glue    GlueClient
	Athena  AthenaClient
	Opts    SnapshotOptions
	Log     zerolog.Logger
}

type SnapshotResult struct {
	Shops   int `json:"shops"`
	Written int `json:"written"`
	Skipped int `json:"skipped"`
}

// Run snapshots the last Opts.DaysBack days for every installed shop,
// then repairs the Athena partitions so new dt/shop_id paths are queryable.
// A shop that fails (revoked token, API error) is skipped, not fatal.
func (e *SalesSnapshot) Run(ctx context.Context, now time.Time) (*SnapshotResult, error) {
	opt := e.Opts
	if strings.TrimSpace(opt.Bucket) == "" {
		return nil, fmt.Errorf("missing analytics bucket")
	}
	if opt.Prefix == "" {
		opt.Prefix = "sales_daily_metrics/"
	}
	if opt.DaysBack <= 0 || opt.DaysBack > 90 {
		opt.DaysBack = 1
	}

	if loc, err := e.tableLocation(ctx, opt); err == nil && loc != "" {
		if b, p, ok := parseS3Location(loc); ok {
			opt.Bucket, opt.Prefix = b, p
		}
	}

	domains, err := e.Shops.ListDomains(ctx)
	if err != nil {
		return nil, err
	}
	res := &SnapshotResult{Shops: len(domains)}
	if len(domains) == 0 {
		return res, nil
	}

	since := now.UTC().AddDate(0, 0, -(opt.DaysBack - 1)).Truncate(24 * time.Hour)

	for _, domain := range domains {
		written, err := e.snapshotShop(ctx, domain, since, opt)
		if err != nil {
			e.Log.Error().Err(err).Str("shop", domain).Msg("sales snapshot failed for shop")
			res.Skipped++
			continue
		}
		res.Written += written
	}

	if err := e.repairPartitions(ctx, opt); err != nil {
		e.Log.Error().Err(err).Msg("partition repair failed")
	}
	return res, nil
}

func (e *SalesSnapshot) snapshotShop(ctx context.Context, domain string, since time.Time, opt SnapshotOptions) (int, error) {
	rec, err := e.Shops.GetByDomain(ctx, domain)
	if err != nil {
		return 0, err
	}
	token, err := e.Tokens.Decrypt(rec.AccessTokenEnc)
	if err != nil {
		return 0, fmt.Errorf("decrypt access token: %w", err)
	}

	totals, err := e.Orders.GetDailyTotals(ctx, domain, token, since)
	if err != nil {
		return 0, err
	}

	written := 0
	for day, total := range totals {
		row := SalesRow{
			MetricDate: day,
			NetRevenue: total.Revenue,
			OrderCount: int64(total.Orders),
			Currency:   total.Currency,
		}
		key := fmt.Sprintf("%sdt=%s/shop_id=%s/part-%s.parquet",
			ensureTrailingSlash(opt.Prefix), day, domain, randHex(8))
		if err := e.writeParquetRow(ctx, opt.Bucket, key, row); err != nil {
			return written, fmt.Errorf("write parquet dt=%s: %w", day, err)
		}
		written++
	}
	return written, nil
}

// tableLocation resolves the table's S3 location from the Glue catalog so
// the writer and the table definition cannot drift apart.
func (e *SalesSnapshot) tableLocation(ctx context.Context, opt SnapshotOptions) (string, error) {
	if e.Glue == nil || opt.Database == "" || opt.Table == "" {
		return "", nil
	}
	out, err := e.Glue.GetTable(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(opt.Database),
		Name:         aws.String(opt.Table),
	})
	if err != nil {
		return "", fmt.Errorf("glue GetTable: %w", err)
	}
	if out.Table == nil || out.Table.StorageDescriptor == nil {
		return "", nil
	}
	return aws.ToString(out.Table.StorageDescriptor.Location), nil
}

func (e *SalesSnapshot) repairPartitions(ctx context.Context, opt SnapshotOptions) error {
	if e.Athena == nil || opt.Database == "" || opt.Table == "" || opt.Output == "" {
		return nil
	}
	wg := opt.Workgroup
	if wg == "" {
		wg = "primary"
	}

	startOut, err := e.Athena.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(fmt.Sprintf("MSCK REPAIR TABLE %s", opt.Table)),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{
			Database: aws.String(opt.Database),
		},
		WorkGroup: aws.String(wg),
		ResultConfiguration: &athenatypes.ResultConfiguration{
			OutputLocation: aws.String(opt.Output),
		},
	})
	if err != nil {
		return fmt.Errorf("StartQueryExecution: %w", err)
	}
	qid := aws.ToString(startOut.QueryExecutionId)

	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		st, err := e.Athena.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(qid),
		})
		if err != nil {
			return fmt.Errorf("GetQueryExecution: %w", err)
		}
		switch st.QueryExecution.Status.State {
		case athenatypes.QueryExecutionStateSucceeded:
			return nil
		case athenatypes.QueryExecutionStateFailed, athenatypes.QueryExecutionStateCancelled:
			return fmt.Errorf("repair %s: %s", st.QueryExecution.Status.State,
				aws.ToString(st.QueryExecution.Status.StateChangeReason))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return fmt.Errorf("repair timed out waiting for qid=%s", qid)
}

// writeParquetRow writes a single-row parquet file to a tmp path and
// uploads it. parquet-go wants a seekable writer, so no direct streaming.
func (e *SalesSnapshot) writeParquetRow(ctx context.Context, bucket, key string, row SalesRow) error {
	localPath := filepath.Join(os.TempDir(), "sales_snapshot_"+randHex(8)+".parquet")

	fw, err := local.NewLocalFileWriter(localPath)
	if err != nil {
		return fmt.Errorf("parquet file writer: %w", err)
	}

	pw, err := writer.NewParquetWriter(fw, new(SalesRow), 1)
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("parquet writer: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.PageSize = 8 * 1024
	pw.CompressionType = 0

	if err := pw.Write(row); err != nil {
		_ = pw.WriteStop()
		_ = fw.Close()
		return fmt.Errorf("parquet write row: %w", err)
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return fmt.Errorf("parquet write stop: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("parquet close: %w", err)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read parquet tmp: %w", err)
	}
	defer func() { _ = os.Remove(localPath) }()

	_, err = e.S3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		ACL:         s3types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return fmt.Errorf("s3 PutObject: %w", err)
	}
	return nil
}

// parseS3Location splits "s3://bucket/prefix/" into bucket and prefix.
func parseS3Location(loc string) (bucket, prefix string, ok bool) {
	rest, found := strings.CutPrefix(loc, "s3://")
	if !found || rest == "" {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", false
	}
	return bucket, prefix, true
}

func ensureTrailingSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

func randHex(nBytes int) string {
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
