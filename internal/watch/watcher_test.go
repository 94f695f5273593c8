package watch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func readMapping(t *testing.T, path string) map[string]map[string]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]map[string]string
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestAccepts(t *testing.T) {
	assert.True(t, Accepts("/in/sheet.txt"))
	assert.True(t, Accepts("/in/sheet.HTML"))
	assert.True(t, Accepts("/in/sheet.htm"))
	assert.False(t, Accepts("/in/sheet.json"))
	assert.False(t, Accepts("/in/sheet"))
}

func TestCleanFile_Text(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ram.txt")
	require.NoError(t, os.WriteFile(path, []byte("1. Name Ram Kumar\n2. eHRMS Code UP123"), 0644))

	out, degraded, err := CleanFile(path)
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "ram.json"), out)

	got := readMapping(t, out)
	assert.Equal(t, map[string]string{"Field": "Name", "Value": "Ram Kumar"}, got["1"])
	assert.Equal(t, map[string]string{"Field": "eHRMS Code", "Value": "UP123"}, got["2"])
}

func TestCleanFile_HTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	doc := `<html><body><h1>Portal</h1><div id="dvReport"><p>9. Cadre Doctor</p></div></body></html>`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	out, _, err := CleanFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Field": "Cadre", "Value": "Doctor"}, readMapping(t, out)["9"])
}

func TestCleanFile_MappingInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.txt")
	require.NoError(t, os.WriteFile(path, []byte(`{"1. Name": "MANOJ KUMAR 2. eHRMS Code", "UP12345": null}`), 0644))

	out, _, err := CleanFile(path)
	require.NoError(t, err)
	got := readMapping(t, out)
	assert.Equal(t, "MANOJ KUMAR", got["1"]["Value"])
	assert.Equal(t, "UP12345", got["2"]["Value"])
}

func TestCleanFile_Degraded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.txt")
	require.NoError(t, os.WriteFile(path, []byte("nothing to see"), 0644))

	out, degraded, err := CleanFile(path)
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Empty(t, readMapping(t, out))
}

func TestCleanFile_Missing(t *testing.T) {
	_, _, err := CleanFile(filepath.Join(t.TempDir(), "absent.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestWatcher_CleansNewFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, zaptest.NewLogger(t))
	require.NoError(t, err)
	w.SetDebounce(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.json"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sheet.txt"), []byte("1. Name Ram 11. Gender Male"), 0644))

	out := filepath.Join(dir, "sheet.json")
	require.Eventually(t, func() bool {
		_, err := os.Stat(out)
		return err == nil && w.Stats().Processed >= 1
	}, 5*time.Second, 20*time.Millisecond)

	got := readMapping(t, out)
	assert.Equal(t, "Male", got["11"]["Value"])
	assert.Equal(t, out, w.Stats().LastOutput)
	assert.Equal(t, 0, w.Stats().Errors)
}

func TestWatcher_StopsOnContextCancel(t *testing.T) {
	w, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))

	cancel()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher loop did not exit")
	}
	w.Stop()
}

func TestWatcher_StartTwice(t *testing.T) {
	w, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	require.NoError(t, w.Start(ctx))
	w.Stop()
}

func TestWatcher_StopAfterFailedStart(t *testing.T) {
	file := filepath.Join(t.TempDir(), "sheet.txt")
	require.NoError(t, os.WriteFile(file, []byte("1. Name Ram"), 0644))

	w, err := New(filepath.Join(file, "inbox"), nil)
	require.NoError(t, err)
	require.Error(t, w.Start(context.Background()))

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked after a failed Start")
	}
}
