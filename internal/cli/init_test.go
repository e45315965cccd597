package cli

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashflow/internal/config"
	"cashflow/internal/sheets/memory"
)

func TestNewExporter(t *testing.T) {
	ctx := context.Background()

	w, err := NewExporter(ctx, &config.Config{ExportBackend: config.ExportNone})
	require.NoError(t, err)
	assert.Nil(t, w)

	w, err = NewExporter(ctx, &config.Config{ExportBackend: config.ExportMemory})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, w)

	_, err = NewExporter(ctx, &config.Config{ExportBackend: config.ExportSheets, GoogleSheetName: "Projection"})
	assert.ErrorContains(t, err, "init google sheets exporter")
}

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger("debug", "json")
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
	assert.Equal(t, logger.Logger, slog.Default())
}

func TestInitAMQPDisabled(t *testing.T) {
	logger := SetupLogger("error", "text")
	assert.Nil(t, InitAMQP(logger, &config.Config{}))
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("SQLITE_DB_PATH", filepath.Join(t.TempDir(), "cashflow.db"))
	t.Setenv("EXPORT_BACKEND", "carrier-pigeon")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "invalid export backend")
}
