package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-fee-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "fees", Password: "pw", Name: "sma_fees", SSLMode: "require"})
	assert.Equal(t, "host=db port=5433 user=fees password=pw dbname=sma_fees sslmode=require", dsn)
}
