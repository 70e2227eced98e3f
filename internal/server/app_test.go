package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/buzzdrop/internal/logging"
	"github.com/dmitrijs2005/buzzdrop/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.LoadDefaults()
	c.EndpointAddrHTTP = "127.0.0.1:0"
	c.DatabaseDriver = config.DatabaseMemory
	c.StorageBackend = config.StorageMemory
	c.ReaperInterval = 10 * time.Millisecond
	c.Timezone = "UTC"
	require.NoError(t, c.Validate())
	return c
}

func withEnviron(t *testing.T, env []string) {
	t.Helper()
	orig := environ
	environ = func() []string { return env }
	t.Cleanup(func() { environ = orig })
}

func TestNewApp_InMemory(t *testing.T) {
	withEnviron(t, []string{"BUZZDROP_USER_1=alice:pw:false"})
	app, err := newApp(context.Background(), testConfig(t), logging.Nop())
	require.NoError(t, err)
	assert.Nil(t, app.db)
	assert.NotNil(t, app.artifacts)
	assert.NotNil(t, app.server)
	assert.NotNil(t, app.reaper)
}

func TestNewApp_SQLiteAndLocalStorageRemovesOrphans(t *testing.T) {
	withEnviron(t, nil)
	dir := t.TempDir()
	c := testConfig(t)
	c.DatabaseDriver = config.DatabaseSQLite
	c.DatabaseDSN = filepath.Join(dir, "db", "buzzdrop.db")
	c.StorageBackend = config.StorageLocal
	c.UploadDir = filepath.Join(dir, "uploads")
	require.NoError(t, os.MkdirAll(c.UploadDir, 0o755))
	stray := filepath.Join(c.UploadDir, "stray")
	require.NoError(t, os.WriteFile(stray, []byte("left behind"), 0o600))

	app, err := newApp(context.Background(), c, logging.Nop())
	require.NoError(t, err)
	require.NotNil(t, app.db)
	t.Cleanup(func() { _ = app.db.Close() })

	_, err = os.Stat(stray)
	assert.True(t, os.IsNotExist(err), "orphan removed at startup")
}

func TestNewApp_UnknownDriver(t *testing.T) {
	c := testConfig(t)
	c.DatabaseDriver = "oracle"
	_, err := newApp(context.Background(), c, logging.Nop())
	assert.Error(t, err)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	withEnviron(t, nil)
	app, err := newApp(context.Background(), testConfig(t), logging.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
