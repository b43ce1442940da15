package cmdline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test that the parser detects when defaults are overridden on the command line for the serve command
func TestParseServe(t *testing.T) {
	td := t.TempDir()
	afile := filepath.Join(td, "foo")
	require.NoError(t, os.WriteFile(afile, []byte("foo"), 0644))

	ClearParse()
	os.Args = []string{"bin/imagefetch", "--cache-path", td, "--log-level", "info", "--config-file", afile,
		"--disk-cache", "2097152", "serve", "--port", "22", "--preload-file", afile, "--fetch-timeout", "5s",
		"--workers", "7", "--user-agent", "frobozz", "--memory-cache", "1048576"}
	fromCmdline, cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "serve", fromCmdline.Command)
	assert.True(t, fromCmdline.LogLevel)
	assert.True(t, fromCmdline.ConfigFile)
	assert.True(t, fromCmdline.CachePath)
	assert.True(t, fromCmdline.DiskCacheBytes)
	assert.True(t, fromCmdline.MemoryCacheBytes)
	assert.True(t, fromCmdline.PreloadFile)
	assert.True(t, fromCmdline.Port)
	assert.True(t, fromCmdline.FetchTimeout)
	assert.True(t, fromCmdline.Workers)
	assert.True(t, fromCmdline.UserAgent)
	assert.False(t, fromCmdline.Metrics)
	assert.False(t, fromCmdline.Health)

	assert.Equal(t, td, cfg.CachePath)
	assert.Equal(t, int64(22), cfg.Port)
	assert.Equal(t, int64(7), cfg.Workers)
	assert.Equal(t, int64(1048576), cfg.MemoryCacheBytes)
	assert.Equal(t, int64(2097152), cfg.DiskCacheBytes)
	assert.Equal(t, "5s", cfg.FetchTimeout)
	assert.Equal(t, "frobozz", cfg.UserAgent)
}

// Test that defaults are in place when nothing is overridden
func TestParseDefaults(t *testing.T) {
	ClearParse()
	os.Args = []string{"bin/imagefetch", "serve"}
	fromCmdline, cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "serve", fromCmdline.Command)
	assert.False(t, fromCmdline.Port)
	assert.False(t, fromCmdline.MemoryCacheBytes)
	assert.Equal(t, int64(8080), cfg.Port)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Greater(t, cfg.MemoryCacheBytes, int64(0))
	assert.Greater(t, cfg.DiskCacheBytes, int64(0))
}

func TestParseList(t *testing.T) {
	ClearParse()
	os.Args = []string{"bin/imagefetch", "list", "--header", "--sort", "size"}
	fromCmdline, cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "list", fromCmdline.Command)
	assert.True(t, fromCmdline.ListConfig)
	assert.True(t, cfg.ListConfig.Header)
	assert.Equal(t, "size", cfg.ListConfig.Sort)
}

func TestParseRejectsBadValues(t *testing.T) {
	for _, args := range [][]string{
		{"bin/imagefetch", "--log-level", "frobozz", "serve"},
		{"bin/imagefetch", "serve", "--fetch-timeout", "soon"},
		{"bin/imagefetch", "serve", "--workers", "0"},
		{"bin/imagefetch", "--disk-cache", "lots", "serve"},
		{"bin/imagefetch", "list", "--sort", "color"},
		{"bin/imagefetch", "serve", "--preload-file", "/this/file/does/not/exist"},
	} {
		ClearParse()
		os.Args = args
		_, _, err := Parse()
		assert.Error(t, err, args)
	}
}
