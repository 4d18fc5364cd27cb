package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectDriver(t *testing.T) {
	tests := []struct {
		url      string
		expected Driver
	}{
		{"", DriverSQLite},
		{"postgres://billing:secret@db:5432/memberly", DriverPostgres},
		{"postgresql://billing@db/memberly?sslmode=disable", DriverPostgres},
		{"sqlite:///var/lib/memberly/billing.sqlite", DriverSQLite},
		{"file:/var/lib/memberly/billing", DriverSQLite},
		{"/var/lib/memberly/billing.db", DriverSQLite},
		{"billing.sqlite3", DriverSQLite},
		{"mysql://db/memberly", DriverPostgres},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectDriver(tt.url))
		})
	}
}

func TestDriver_IsValid(t *testing.T) {
	assert.True(t, DriverPostgres.IsValid())
	assert.True(t, DriverSQLite.IsValid())
	assert.False(t, Driver("mysql").IsValid())
	assert.Equal(t, "sqlite", DriverSQLite.String())
}

func TestSQLitePathFromURL(t *testing.T) {
	assert.Equal(t, "/data/billing.db", sqlitePathFromURL("sqlite:///data/billing.db"))
	assert.Equal(t, "billing.db", sqlitePathFromURL("billing.db"))
	assert.Equal(t, "", sqlitePathFromURL("postgres://db/memberly"))
}
