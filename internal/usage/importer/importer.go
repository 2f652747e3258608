// Package importer loads usage rows from CSV exports into the usage ledger.
package importer

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
	"github.com/smallbiznis/meterbill/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrEmptyFile      = errors.New("empty_file")
	ErrMissingColumns = errors.New("missing_columns")
	ErrTooManyRows    = errors.New("too_many_rows")
)

const (
	colUserID         = "user_id"
	colMetric         = "metric"
	colQuantity       = "quantity"
	colUsageDate      = "usage_date"
	colIdempotencyKey = "idempotency_key"

	defaultMaxRows = 50000
)

var headerAliases = map[string]string{
	"metric_name":  colMetric,
	"usage_amount": colQuantity,
}

var requiredColumns = []string{colUserID, colMetric, colQuantity, colUsageDate}

// RowError describes a rejected row. Row numbers count the header as row 1.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type Report struct {
	BatchID  string     `json:"batch_id"`
	Accepted int        `json:"accepted"`
	Rejected []RowError `json:"rejected"`
}

type Params struct {
	fx.In

	Log      *zap.Logger
	UsageSvc domain.Service
}

type Importer struct {
	log      *zap.Logger
	usageSvc domain.Service
	maxRows  int
}

func New(p Params) *Importer {
	return &Importer{
		log:      p.Log.Named("usage.importer"),
		usageSvc: p.UsageSvc,
		maxRows:  defaultMaxRows,
	}
}

// Import records every valid row through the usage service. A row that fails
// validation is reported and skipped; it never aborts the remaining rows.
func (i *Importer) Import(ctx context.Context, tenantID snowflake.ID, r io.Reader) (Report, error) {
	if tenantID == 0 {
		return Report{}, domain.ErrInvalidTenant
	}

	reader, err := newReader(r)
	if err != nil {
		return Report{}, err
	}

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Report{}, ErrEmptyFile
	}
	if err != nil {
		return Report{}, fmt.Errorf("read header: %w", err)
	}
	columns := indexHeader(header)
	missing := lo.Filter(requiredColumns, func(col string, _ int) bool {
		_, ok := columns[col]
		return !ok
	})
	if len(missing) > 0 {
		return Report{}, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	report := Report{
		BatchID:  ulid.Make().String(),
		Rejected: []RowError{},
	}

	row := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if row-1 > i.maxRows {
			return report, ErrTooManyRows
		}
		if err != nil {
			report.Rejected = append(report.Rejected, RowError{Row: row, Reason: err.Error()})
			continue
		}
		if isBlank(record) {
			continue
		}

		req, err := parseRow(record, columns)
		if err != nil {
			report.Rejected = append(report.Rejected, RowError{Row: row, Reason: err.Error()})
			continue
		}
		req.TenantID = tenantID
		req.Source = domain.SourceCSV
		req.Metadata = map[string]any{"batch_id": report.BatchID, "row": row}

		if _, err := i.usageSvc.RecordUsage(ctx, req); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Rejected = append(report.Rejected, RowError{Row: row, Reason: err.Error()})
			continue
		}
		report.Accepted++
	}

	i.log.Info("usage.import.completed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("batch_id", report.BatchID),
		zap.Int("accepted", report.Accepted),
		zap.Int("rejected", len(report.Rejected)),
	)
	return report, nil
}

func newReader(r io.Reader) (*csv.Reader, error) {
	buf := bufio.NewReader(r)
	head, err := buf.Peek(3)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(head) == 0 {
		return nil, ErrEmptyFile
	}
	// UTF-8 BOM
	if len(head) >= 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
		_, _ = buf.Discard(3)
	}

	reader := csv.NewReader(buf)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	return reader, nil
}

func indexHeader(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for idx, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if alias, ok := headerAliases[name]; ok {
			name = alias
		}
		if _, exists := columns[name]; !exists {
			columns[name] = idx
		}
	}
	return columns
}

func parseRow(record []string, columns map[string]int) (domain.RecordUsageRequest, error) {
	field := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	userID, err := snowflake.ParseString(field(colUserID))
	if err != nil || userID == 0 {
		return domain.RecordUsageRequest{}, domain.ErrInvalidUser
	}
	quantity, err := strconv.ParseFloat(field(colQuantity), 64)
	if err != nil {
		return domain.RecordUsageRequest{}, domain.ErrInvalidQuantity
	}
	usageDate, err := time.Parse("2006-01-02", field(colUsageDate))
	if err != nil {
		return domain.RecordUsageRequest{}, domain.ErrInvalidDate
	}

	return domain.RecordUsageRequest{
		UserID:         userID,
		Metric:         field(colMetric),
		Quantity:       quantity,
		OccurredOn:     usageDate,
		IdempotencyKey: field(colIdempotencyKey),
	}, nil
}

func isBlank(record []string) bool {
	return lo.EveryBy(record, func(v string) bool { return strings.TrimSpace(v) == "" })
}
