package database

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMaintenanceDSN(t *testing.T) {
	tests := []struct {
		name      string
		dsn       string
		wantAdmin string
		wantDB    string
	}{
		{
			name:      "url",
			dsn:       "postgres://jan:secret@db:5432/transcription_api?sslmode=disable",
			wantAdmin: "postgres://jan:secret@db:5432/postgres?sslmode=disable",
			wantDB:    "transcription_api",
		},
		{
			name:      "key value",
			dsn:       "host=db user=jan dbname=transcription_api sslmode=disable",
			wantAdmin: "host=db user=jan dbname=postgres sslmode=disable",
			wantDB:    "transcription_api",
		},
		{name: "already postgres", dsn: "postgres://jan@db/postgres"},
		{name: "no database", dsn: "host=db user=jan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admin, db := maintenanceDSN(tt.dsn)
			assert.Equal(t, tt.wantAdmin, admin)
			assert.Equal(t, tt.wantDB, db)
		})
	}
}

func TestWithApplicationName(t *testing.T) {
	assert.Equal(t,
		"postgres://jan@db/transcription_api?application_name=transcription-api&sslmode=disable",
		withApplicationName("postgres://jan@db/transcription_api?sslmode=disable"))
	assert.Equal(t,
		"host=db dbname=transcription_api application_name=transcription-api",
		withApplicationName("host=db dbname=transcription_api"))
	assert.Equal(t,
		"host=db application_name=worker",
		withApplicationName("host=db application_name=worker"))
}

func TestConnectRejectsEmptyDSN(t *testing.T) {
	_, err := Connect(context.Background(), Config{DSN: "  "}, zerolog.Nop())
	assert.EqualError(t, err, "database DSN is empty")
}

func TestGormLoggerTrace(t *testing.T) {
	var buf bytes.Buffer
	l := NewGormLogger(zerolog.New(&buf), gormlogger.Warn, 100*time.Millisecond)
	query := func() (string, int64) { return `SELECT * FROM "media_files"`, 1 }

	l.Trace(context.Background(), time.Now(), query, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String(), "missing rows are not errors")

	l.Trace(context.Background(), time.Now(), query, nil)
	assert.Empty(t, buf.String(), "fast queries stay quiet at warn level")

	l.Trace(context.Background(), time.Now(), query, errors.New("connection reset"))
	assert.Contains(t, buf.String(), `"message":"query failed"`)
	assert.Contains(t, buf.String(), `"error":"connection reset"`)

	buf.Reset()
	l.Trace(context.Background(), time.Now().Add(-time.Second), query, nil)
	assert.Contains(t, buf.String(), `"message":"slow query"`)

	buf.Reset()
	l.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), query, errors.New("connection reset"))
	assert.Empty(t, buf.String())
}
