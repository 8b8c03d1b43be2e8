package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberfx/emberlink"
	"github.com/emberfx/emberlink/internal/preset"
)

func TestRecordRunsTracksCrashLifecycle(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake engine is a shell script")
	}
	script := filepath.Join(t.TempDir(), "engine.sh")
	body := `#!/bin/sh
echo '{"type":"ready","payload":{"version":"2.4.0"}}'
while read line; do
  case "$line" in
    *'"type":"load_image"'*) exit 7 ;;
    *'"type":"shutdown"'*) exit 0 ;;
  esac
done
`
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	db, err := preset.Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.NoError(t, db.EnsureSchema(context.Background()))

	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	bridge := emberlink.New(emberlink.Spec{
		Name:           "test",
		Command:        "/bin/sh",
		Args:           []string{script},
		StartTimeout:   5 * time.Second,
		RequestTimeout: 2 * time.Second,
		StopGrace:      2 * time.Second,
	}, log, nil)
	defer bridge.Shutdown()

	recordRuns(bridge, db, log)

	res := bridge.Start(context.Background())
	require.True(t, res.OK, "start failed: %s", res.Err)

	require.Eventually(t, func() bool {
		run, err := db.LastRun(context.Background())
		return err == nil && run.PID == res.PID
	}, 2*time.Second, 10*time.Millisecond, "the ready handler records the run start")

	_, _ = bridge.LoadImage(context.Background(), "/tmp/photo.png")

	require.Eventually(t, func() bool {
		run, err := db.LastRun(context.Background())
		return err == nil && !run.StoppedAt.IsZero()
	}, 2*time.Second, 10*time.Millisecond, "the exit handler finalizes the run")

	run, err := db.LastRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.PID, run.PID)
	assert.Equal(t, "2.4.0", run.Version)
	assert.Equal(t, 7, run.ExitCode)
	assert.True(t, run.Crashed)
}
