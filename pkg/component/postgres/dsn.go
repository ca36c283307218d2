package postgres

import (
	"fmt"
	"strings"

	options "github.com/kart-io/docqa/pkg/options/postgres"
)

// BuildDSN creates a PostgreSQL DSN from the provided options.
// The password is quoted and escaped so special characters cannot inject extra keys.
//
// Example:
//
//	host=localhost port=5432 user=postgres password=secret dbname=mydb sslmode=disable
func BuildDSN(opts *options.Options) string {
	if opts == nil {
		return ""
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		opts.Host,
		opts.Port,
		opts.Username,
		escapePostgresValue(opts.Password),
		opts.Database,
		opts.SSLMode,
	)
}

// escapePostgresValue wraps values containing spaces, quotes or backslashes in
// single quotes, doubling embedded quotes and escaping backslashes.
func escapePostgresValue(value string) string {
	if value == "" {
		return "''"
	}

	if strings.ContainsAny(value, " '\\") {
		escaped := strings.ReplaceAll(value, "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "'", "\\'")
		return "'" + escaped + "'"
	}

	return value
}
