package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factsheet/internal/factsheet"
	"factsheet/internal/store"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("FACTSHEET_DB", "")
	t.Setenv("FACTSHEET_LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "none.yaml")))
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

const sample = "1. Name MANOJ KUMAR 2. eHRMS Code UP12345 3. Father's Name RAM KUMAR"

func TestClean_PrettyFromStdin(t *testing.T) {
	out, err := execute(t, sample, "clean", "--format", "pretty", "--json=false", "--html=false")
	require.NoError(t, err)
	assert.Equal(t,
		"1. Name — MANOJ KUMAR\n2. eHRMS Code — UP12345\n3. Father's Name — RAM KUMAR\n",
		out)
}

func TestClean_StructuredFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.txt")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	out, err := execute(t, "", "clean", path, "--json", "--html=false")
	require.NoError(t, err)
	assert.Equal(t, `{
  "1": {
    "Field": "Name",
    "Value": "MANOJ KUMAR"
  },
  "2": {
    "Field": "eHRMS Code",
    "Value": "UP12345"
  },
  "3": {
    "Field": "Father's Name",
    "Value": "RAM KUMAR"
  }
}
`, out)
}

func TestClean_HTMLByExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	page := `<html><body><div id="dvReport"><p>7. Home District Lucknow</p></div></body></html>`
	require.NoError(t, os.WriteFile(path, []byte(page), 0644))

	out, err := execute(t, "", "clean", path, "--format", "pretty", "--json=false", "--html=false")
	require.NoError(t, err)
	assert.Equal(t, "7. Home District — Lucknow\n", out)
}

func TestClean_MappingInput(t *testing.T) {
	out, err := execute(t, `{"1. Name": "MANOJ KUMAR 2. eHRMS Code", "UP12345": ""}`,
		"clean", "--format", "pretty", "--json=false", "--html=false")
	require.NoError(t, err)
	assert.Equal(t, "1. Name — MANOJ KUMAR\n2. eHRMS Code — UP12345\n", out)
}

func TestClean_Degraded(t *testing.T) {
	out, err := execute(t, "", "clean", "--format", "pretty", "--json=false", "--html=false")
	require.NoError(t, err)
	assert.Equal(t, "Raw Text — \n", out)
}

func TestClean_UnknownFormat(t *testing.T) {
	_, err := execute(t, sample, "clean", "--format", "xml", "--json=false", "--html=false")
	assert.ErrorContains(t, err, "unknown format")
}

func TestLoadJobs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- parent: Medical Health
  organisation: District Hospital
  last_field: UP1
- parent: Medical Health
  organisation: Medical College
  headless: false
`), 0644))

	jobs, err := loadJobs(path)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "UP1", jobs[0].LastField)
	assert.True(t, jobs[0].IsHeadless())
	assert.False(t, jobs[1].IsHeadless())

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("- organisation: X\n"), 0644))
	_, err = loadJobs(bad)
	assert.ErrorContains(t, err, "job 0")

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("[]\n"), 0644))
	_, err = loadJobs(empty)
	assert.Error(t, err)
}

func TestRenderHistory(t *testing.T) {
	var buf bytes.Buffer
	renderHistory(&buf, nil)
	assert.Contains(t, buf.String(), "Scrape history (0)")
	assert.Contains(t, buf.String(), "no scrapes recorded")

	buf.Reset()
	renderHistory(&buf, []store.Entry{{
		ID:           "job-1",
		CreatedAt:    time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC),
		Parent:       "Medical Health",
		Organisation: "District Hospital",
		LastField:    "UP1",
		FieldCount:   27,
		Fields:       factsheet.NewStructured(nil),
	}})
	assert.Contains(t, buf.String(), "2025-02-03 04:05:06  job-1  Medical Health / District Hospital [UP1]  27 fields")
}

func TestHistory_Command(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Save(context.Background(), &store.Entry{ID: "abc", Parent: "P", Organisation: "O", OK: true}))
	require.NoError(t, st.Close())

	t.Setenv("FACTSHEET_DB", dbPath)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"history", "--limit", "5", "--config", filepath.Join(t.TempDir(), "none.yaml")})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "abc  P / O")
}
