package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const minimalServerYAML = `
host: 127.0.0.1
port: 9091
adapter_url: http://localhost:9100
approval_policy: manual
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kernel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeTempConfig(t, minimalServerYAML)

	loader, err := NewLoader(LoaderOptions{Type: BackendFile, Path: path})
	require.NoError(t, err)

	cfg, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.Host)
	require.Equal(t, 9091, cfg.Port)
	require.Equal(t, "http://localhost:9100", cfg.AdapterURL)
}

func TestLoader_DefaultsToFileBackend(t *testing.T) {
	path := writeTempConfig(t, minimalServerYAML)

	loader, err := NewLoader(LoaderOptions{Path: path})
	require.NoError(t, err)
	require.Equal(t, BackendFile, loader.options.Type)
}

func TestLoader_RequiresPath(t *testing.T) {
	_, err := NewLoader(LoaderOptions{})
	require.Error(t, err)
}

func TestLoader_WatchFile_ReloadsOnChange(t *testing.T) {
	path := writeTempConfig(t, minimalServerYAML)

	changed := make(chan *ServerConfig, 1)
	loader, err := NewLoader(LoaderOptions{
		Type:  BackendFile,
		Path:  path,
		Watch: true,
		OnChange: func(cfg *ServerConfig) error {
			changed <- cfg
			return nil
		},
	})
	require.NoError(t, err)
	defer loader.Stop()

	_, err = loader.Load()
	require.NoError(t, err)

	// Give the watch goroutine time to start watching the directory
	// before the write below, matching the teacher's debounce-aware
	// integration test pacing.
	time.Sleep(50 * time.Millisecond)

	updated := `
host: 127.0.0.1
port: 9092
adapter_url: http://localhost:9100
approval_policy: manual
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case cfg := <-changed:
		require.Equal(t, 9092, cfg.Port)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
