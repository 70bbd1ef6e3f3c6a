package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rowpreload/internal/config"
	"rowpreload/internal/rowset"
)

func TestRunFlags_Request(t *testing.T) {
	fs := pflag.NewFlagSet("rowpreload", pflag.ContinueOnError)
	flags := defineRunFlags(fs)
	config.DefineFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"--table", "posts",
		"--include", "{user: {only: [name]}, comments: ~}",
		"--only", "title,created_at",
		"--id", "1", "--id", "2",
		"--where", "status=published",
		"--order-by", "created_at DESC",
		"--mode", "record",
		"--preload.max_in_list", "200",
	}))

	req, err := flags.request(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "posts", req.Table)
	assert.Equal(t, "{user: {only: [name]}, comments: ~}", req.Include)
	assert.Equal(t, []string{"title", "created_at"}, req.Only)
	assert.Equal(t, []string{"1", "2"}, req.IDs)
	assert.Equal(t, map[string]string{"status": "published"}, req.Where)
	assert.Equal(t, []string{"created_at DESC"}, req.OrderBy)
	assert.Equal(t, "record", req.Mode)
}

// Methods are Go callables registered by embedders, so the CLI has no flag for them.
func TestRunFlags_NoMethodsFlag(t *testing.T) {
	fs := pflag.NewFlagSet("rowpreload", pflag.ContinueOnError)
	fs.SetOutput(&bytes.Buffer{})
	defineRunFlags(fs)
	config.DefineFlags(fs)

	err := fs.Parse([]string{"--table", "users", "--methods", "shout"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag: --methods")
}

func TestRunFlags_TableRequired(t *testing.T) {
	fs := pflag.NewFlagSet("rowpreload", pflag.ContinueOnError)
	flags := defineRunFlags(fs)
	require.NoError(t, fs.Parse(nil))

	_, err := flags.request(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--table")
}

func TestReadInclude(t *testing.T) {
	inline, err := readInclude("[user, comments]", nil)
	require.NoError(t, err)
	assert.Equal(t, "[user, comments]", inline)

	fromStdin, err := readInclude("@-", strings.NewReader("tags:\n  only: [name]\n"))
	require.NoError(t, err)
	assert.Equal(t, "tags:\n  only: [name]\n", fromStdin)

	path := filepath.Join(t.TempDir(), "include.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- user\n"), 0o600))
	fromFile, err := readInclude("@"+path, nil)
	require.NoError(t, err)
	assert.Equal(t, "- user\n", fromFile)

	_, err = readInclude("@"+filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestWriteRows(t *testing.T) {
	shape := rowset.NewShape("id", "title")
	rows := []rowset.Row{
		rowset.Map{"id": int64(1), "user": rowset.Map{"name": "alice"}},
		rowset.NewRecord(shape, []any{int64(2), "b"}),
	}

	var buf bytes.Buffer
	require.NoError(t, writeRows(&buf, rows, false))
	assert.JSONEq(t, `[{"id":1,"user":{"name":"alice"}},{"id":2,"title":"b"}]`, buf.String())

	buf.Reset()
	require.NoError(t, writeRows(&buf, []rowset.Row{}, true))
	assert.Equal(t, "[]\n", buf.String())
}
