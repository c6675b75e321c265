package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/snowflakedb/gosnowflake"

	"streamloader/internal/event"
	"streamloader/internal/log"
	"streamloader/internal/retry"
)

// columnAlreadyExistsCode is Snowflake's error number for "column already
// exists"; addColumns swallows it as success since the manager's contract is
// idempotent.
const columnAlreadyExistsCode = 1430

var quotedIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// TableManager owns the target table's DDL lifecycle: idempotent creation
// and additive schema evolution.
type TableManager struct {
	db         *sql.DB
	fqn        string
	retry      *retry.Engine
	setupDelay time.Duration
	logger     log.Modular
}

// NewTableManager constructs a TableManager against an already-open
// connection. setupDelay is the base delay for the unbounded setup-retry
// policy backing every DDL operation.
func NewTableManager(db *sql.DB, fqn string, retryEngine *retry.Engine, setupDelay time.Duration, logger log.Modular) *TableManager {
	return &TableManager{db: db, fqn: fqn, retry: retryEngine, setupDelay: setupDelay, logger: logger}
}

// atomicColumns lists the fixed-schema columns in the CREATE TABLE
// statement, using generic SQL types wide enough to hold the analytics
// columns without loss.
var atomicColumns = []struct{ name, sqlType string }{
	{"event_id", "VARCHAR(36) NOT NULL"},
	{"app_id", "VARCHAR(255)"},
	{"platform", "VARCHAR(255)"},
	{"etl_tstamp", "TIMESTAMP_NTZ"},
	{"collector_tstamp", "TIMESTAMP_NTZ NOT NULL"},
	{"dvce_created_tstamp", "TIMESTAMP_NTZ"},
	{"event", "VARCHAR(128)"},
	{"txn_id", "INTEGER"},
	{"user_id", "VARCHAR(255)"},
	{"user_ipaddress", "VARCHAR(128)"},
	{"domain_userid", "VARCHAR(128)"},
	{"domain_sessionidx", "SMALLINT"},
	{"network_userid", "VARCHAR(128)"},
	{"geo_country", "VARCHAR(2)"},
	{"geo_region", "VARCHAR(3)"},
	{"page_url", "VARCHAR(4096)"},
	{"page_title", "VARCHAR(2000)"},
	{"page_referrer", "VARCHAR(4096)"},
	{"se_category", "VARCHAR(1000)"},
	{"se_action", "VARCHAR(1000)"},
	{"se_label", "VARCHAR(4096)"},
	{"se_property", "VARCHAR(1000)"},
	{"se_value", "DOUBLE"},
	{"tr_orderid", "VARCHAR(255)"},
	{"tr_total", "NUMBER(18,2)"},
	{"br_name", "VARCHAR(50)"},
	{"os_name", "VARCHAR(50)"},
	{"dvce_type", "VARCHAR(50)"},
	{"dvce_ismobile", "BOOLEAN"},
	{"event_vendor", "VARCHAR(1000)"},
	{"event_name", "VARCHAR(1000)"},
	{"event_format", "VARCHAR(128)"},
	{"event_version", "VARCHAR(128)"},
	{"event_fingerprint", "VARCHAR(128)"},
	{"true_tstamp", "TIMESTAMP_NTZ"},
	{"derived_tstamp", "TIMESTAMP_NTZ"},
	{"load_tstamp", "TIMESTAMP_NTZ"},
}

// Initialize issues an idempotent CREATE TABLE for the atomic schema, under
// the unbounded setup-retry policy.
func (m *TableManager) Initialize(ctx context.Context) error {
	cols := make([]string, len(atomicColumns))
	for i, c := range atomicColumns {
		cols[i] = fmt.Sprintf("%s %s", c.name, c.sqlType)
	}
	stmt := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s, CONSTRAINT event_id_pk PRIMARY KEY(event_id))",
		m.fqn, joinComma(cols),
	)
	return m.retry.RunSetup(ctx, "table-initialize", m.setupDelay, func(ctx context.Context) error {
		_, err := m.db.ExecContext(ctx, stmt)
		return err
	})
}

// AddColumns issues an ALTER TABLE ADD COLUMN for each name, determining its
// warehouse type by the unstruct_event_*/contexts_* naming convention.
// Passing a name matching neither convention is a programming bug and
// panics rather than silently misclassifying a column.
func (m *TableManager) AddColumns(ctx context.Context, names []string) error {
	for _, name := range names {
		if !quotedIdentifier.MatchString(name) {
			panic(fmt.Sprintf("warehouse: refusing to alter table with unsafe column name %q", name))
		}
		colType := event.ClassifyColumn(name) // panics on unrecognised prefix
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.fqn, name, colType)
		err := m.retry.RunSetup(ctx, fmt.Sprintf("add-column-%s", name), m.setupDelay, func(ctx context.Context) error {
			_, err := m.db.ExecContext(ctx, stmt)
			if isColumnAlreadyExists(err) {
				return nil
			}
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func isColumnAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	var sfErr *gosnowflake.SnowflakeError
	if errors.As(err, &sfErr) {
		return sfErr.Number == columnAlreadyExistsCode
	}
	return false
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
