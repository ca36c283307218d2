package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	options "github.com/kart-io/docqa/pkg/options/postgres"
)

func TestBuildDSN_Basic(t *testing.T) {
	opts := options.NewOptions()
	opts.Host = "localhost"
	opts.Password = "secret"
	opts.Database = "testdb"

	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=testdb sslmode=disable",
		BuildDSN(opts))
}

func TestBuildDSN_PasswordEscaping(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     string
	}{
		{"simple", "secret", "secret"},
		{"empty", "", "''"},
		{"space", "pass word", "'pass word'"},
		{"quote", "pass'word", `'pass\'word'`},
		{"backslash", `pass\word`, `'pass\\word'`},
		{"injection attempt", "x dbname=other", "'x dbname=other'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, escapePostgresValue(tt.password))
		})
	}
}

func TestBuildDSN_Nil(t *testing.T) {
	assert.Empty(t, BuildDSN(nil))
}
