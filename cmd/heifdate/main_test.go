package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadBatchConfigWithoutFile(t *testing.T) {
	cfg, err := loadBatchConfig("", "2021-04-01", []string{"a.heic", "b.heic"})
	require.NoError(t, err)
	assert.Equal(t, "2021-04-01", cfg.Date)
	assert.Equal(t, []string{"a.heic", "b.heic"}, cfg.Files)
}

// A config without a files key must not duplicate the positional paths.
func TestLoadBatchConfigNoFilesKey(t *testing.T) {
	path := writeConfig(t, "date: 2021-04-01T10:30:00\nskip_xmp: true\n")
	cfg, err := loadBatchConfig(path, "", []string{"a.heic", "b.heic"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.heic", "b.heic"}, cfg.Files)
	assert.True(t, cfg.SkipXMP)
}

func TestLoadBatchConfigMergesFiles(t *testing.T) {
	path := writeConfig(t, "date: 2021-04-01\nfiles:\n  - x.heic\n")
	cfg, err := loadBatchConfig(path, "", []string{"y.heic"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x.heic", "y.heic"}, cfg.Files)
}

func TestLoadBatchConfigDateFallback(t *testing.T) {
	path := writeConfig(t, "files:\n  - x.heic\n")
	cfg, err := loadBatchConfig(path, "2021-04-01", nil)
	require.NoError(t, err)
	assert.Equal(t, "2021-04-01", cfg.Date)
}

func TestParseDateLayouts(t *testing.T) {
	for _, s := range []string{
		"2021-04-01T10:30:00Z",
		"2021-04-01T10:30:00",
		"2021-04-01 10:30:00",
		"2021-04-01",
	} {
		ts, err := parseDate(s)
		require.NoError(t, err, s)
		assert.Equal(t, time.April, ts.Month())
	}
	_, err := parseDate("April Fools")
	assert.Error(t, err)
}
