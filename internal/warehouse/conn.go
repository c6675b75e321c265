package warehouse

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/snowflakedb/gosnowflake"
)

// ConnParams are the warehouse connection parameters accepted from
// configuration (output.good in the loader's config tree).
type ConnParams struct {
	Account        string
	User           string
	PrivateKeyPEM  string
	Passphrase     string
	Role           string
	Database       string
	Schema         string
	Table          string
	ChannelName    string
	LoginTimeout   time.Duration
	NetworkTimeout time.Duration
	QueryTimeout   time.Duration
}

// FQN returns the fully qualified table name.
func (p ConnParams) FQN() string {
	return fmt.Sprintf("%s.%s.%s", p.Database, p.Schema, p.Table)
}

// Open dials a database/sql handle authenticated via key-pair auth against
// the configured Snowflake account.
func Open(p ConnParams) (*sql.DB, error) {
	key, err := parsePrivateKey([]byte(p.PrivateKeyPEM), p.Passphrase)
	if err != nil {
		return nil, err
	}
	cfg := &gosnowflake.Config{
		Account:        p.Account,
		User:           p.User,
		Database:       p.Database,
		Schema:         p.Schema,
		Role:           p.Role,
		Authenticator:  gosnowflake.AuthTypeJwt,
		PrivateKey:     key,
		LoginTimeout:   p.LoginTimeout,
		NetworkTimeout: p.NetworkTimeout,
		QueryTimeout:   p.QueryTimeout,
	}
	dsn, err := gosnowflake.DSN(cfg)
	if err != nil {
		return nil, fmt.Errorf("warehouse: failed to build DSN: %w", err)
	}
	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("warehouse: failed to open connection: %w", err)
	}
	return db, nil
}
