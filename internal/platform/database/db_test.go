package database

import (
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionParams_ConnString(t *testing.T) {
	p := ConnectionParams{
		Host:     "db.internal",
		Port:     5433,
		User:     "copilot",
		Password: "p@ss word",
		DBName:   "kb",
		SSLMode:  "disable",
	}

	cfg, err := pgxpool.ParseConfig(p.ConnString())
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.ConnConfig.Host)
	assert.Equal(t, uint16(5433), cfg.ConnConfig.Port)
	assert.Equal(t, "copilot", cfg.ConnConfig.User)
	assert.Equal(t, "p@ss word", cfg.ConnConfig.Password)
	assert.Equal(t, "kb", cfg.ConnConfig.Database)
}
