package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/snowflakedb/gosnowflake"
)

// Vendor codes classified as data issues by the insert stage's error
// classifier (see dataIssueVendorCodes in insert.go). Extracted here because the concrete channel
// is what actually observes and reports gosnowflake's numeric error codes.
const (
	VendorInvalidValueRow      = "INVALID_VALUE_ROW"
	VendorInvalidFormatRow     = "INVALID_FORMAT_ROW"
	VendorMaxRowSizeExceeded   = "MAX_ROW_SIZE_EXCEEDED"
	VendorUnknownDataType      = "UNKNOWN_DATA_TYPE"
	VendorNullValue            = "NULL_VALUE"
	VendorNullOrEmptyString    = "NULL_OR_EMPTY_STRING"
)

// snowflakeVendorCodes maps gosnowflake's numeric SQL error codes onto the
// insert stage's vendor-code vocabulary. Anything absent from this table
// classifies as an unrecognised (and therefore fatal) code.
var snowflakeVendorCodes = map[int]string{
	100038: VendorInvalidValueRow,
	100068: VendorInvalidFormatRow,
	100069: VendorMaxRowSizeExceeded,
	100096: VendorUnknownDataType,
	100097: VendorNullValue,
	100098: VendorNullOrEmptyString,
}

var missingColumnRegexp = regexp.MustCompile(`(?i)invalid identifier '([A-Z0-9_]+)'`)

// snowflakeChannel implements Channel over a plain database/sql connection,
// simulating single-writer streaming-ingest semantics with one single-row
// INSERT per row of a Write call. Snowflake's proprietary Snowpipe
// Streaming wire protocol is not reimplemented here; this adapter targets
// the same warehouse contract (§6) using the SQL surface instead.
type snowflakeChannel struct {
	db  *sql.DB
	fqn string
}

// Write implements Channel. Rows failing due to an unrecognised column are
// reported with that column's name in InsertFailure.ExtraCols; rows failing
// with any *gosnowflake.SnowflakeError are reported as a per-row
// InsertFailure (an unrecognised error number gets an "SF_<number>" vendor
// code, which the insert stage treats as fatal). An
// error that carries neither — a network blip, a cancelled context, a lost
// connection — is not a per-row rejection at all, so it aborts the batch and
// is returned as a call-level error for the caller's transient retry policy
// to handle, rather than being folded into a row failure.
func (c *snowflakeChannel) Write(ctx context.Context, rows []map[string]any) (WriteResult, error) {
	var result WriteResult
	for i, row := range rows {
		if err := c.insertOne(ctx, row); err != nil {
			if isTransientWriteError(err) {
				return WriteResult{}, fmt.Errorf("warehouse: transient write error: %w", err)
			}
			result.Failures = append(result.Failures, classifyInsertError(i, err))
		}
	}
	return result, nil
}

// isTransientWriteError reports whether err reflects an environment-level
// failure rather than a warehouse-classified per-row rejection: neither a
// missing-column identifier error nor a *gosnowflake.SnowflakeError (of any
// error number).
func isTransientWriteError(err error) bool {
	if missingColumnRegexp.MatchString(err.Error()) {
		return false
	}
	var sfErr *gosnowflake.SnowflakeError
	return !errors.As(err, &sfErr)
}

func (c *snowflakeChannel) insertOne(ctx context.Context, row map[string]any) error {
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	placeholders := make([]string, len(names))
	values := make([]any, len(names))
	for i, name := range names {
		placeholders[i] = "?"
		values[i] = encodeValue(row[name])
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", c.fqn, strings.Join(names, ","), strings.Join(placeholders, ","))
	_, err := c.db.ExecContext(ctx, stmt, values...)
	return err
}

func encodeValue(v any) any {
	switch t := v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	default:
		return v
	}
}

// classifyInsertError translates a raw SQL error from a single-row insert
// into an InsertFailure, extracting an unrecognised column name when the
// error indicates a missing column rather than a genuine vendor code. Callers
// must have already ruled out isTransientWriteError, so the remaining case is
// always a *gosnowflake.SnowflakeError.
func classifyInsertError(index int, err error) InsertFailure {
	if m := missingColumnRegexp.FindStringSubmatch(err.Error()); m != nil {
		return InsertFailure{
			Index:     index,
			ExtraCols: map[string]struct{}{strings.ToLower(m[1]): {}},
			Message:   err.Error(),
		}
	}
	var sfErr *gosnowflake.SnowflakeError
	if errors.As(err, &sfErr) {
		if code, known := snowflakeVendorCodes[sfErr.Number]; known {
			return InsertFailure{Index: index, VendorCode: code, Message: err.Error()}
		}
		return InsertFailure{Index: index, VendorCode: fmt.Sprintf("SF_%d", sfErr.Number), Message: err.Error()}
	}
	return InsertFailure{Index: index, VendorCode: "INTERNAL_ERROR", Message: err.Error()}
}

// Close implements Channel. The connection pool is owned by the caller of
// NewSnowflakeOpener, not the channel itself, so Close is a no-op — closing
// only ends this channel's logical session.
func (c *snowflakeChannel) Close() error { return nil }

// SnowflakeOpener implements Opener (component E) against an already-open
// warehouse connection.
type SnowflakeOpener struct {
	db  *sql.DB
	fqn string
}

// NewSnowflakeOpener constructs a SnowflakeOpener bound to a fixed table.
func NewSnowflakeOpener(db *sql.DB, fqn string) *SnowflakeOpener {
	return &SnowflakeOpener{db: db, fqn: fqn}
}

// Open implements Opener.
func (o *SnowflakeOpener) Open(ctx context.Context) (Channel, error) {
	if err := o.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("warehouse: failed to open channel: %w", err)
	}
	return &snowflakeChannel{db: o.db, fqn: o.fqn}, nil
}
