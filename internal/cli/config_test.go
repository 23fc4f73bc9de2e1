package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeConfigsOverlayWins(t *testing.T) {
	base := DefaultConfig()
	overlay := &Config{
		BackendURL: "http://backend:9000",
		ListenPort: 8080,
		Direction:  "horizontal",
		Verbose:    true,
	}

	merged := MergeConfigs(base, overlay)

	assert.Equal(t, "http://backend:9000", merged.BackendURL)
	assert.Equal(t, 8080, merged.ListenPort)
	assert.Equal(t, "horizontal", merged.Direction)
	assert.True(t, merged.Verbose)
	// Untouched fields keep the base values.
	assert.Equal(t, base.ListenHost, merged.ListenHost)
	assert.Equal(t, base.EventBufferSize, merged.EventBufferSize)
}

func TestMergeConfigsNilSafety(t *testing.T) {
	overlay := &Config{BackendURL: "http://x"}
	assert.Equal(t, "http://x", MergeConfigs(nil, overlay).BackendURL)

	base := DefaultConfig()
	assert.Equal(t, base, MergeConfigs(base, nil))
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"backend_url: http://backend:9000\nlisten_port: 4000\nverbose: true\n"), 0o644))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://backend:9000", cfg.BackendURL)
	assert.Equal(t, 4000, cfg.ListenPort)
	assert.True(t, cfg.Verbose)

	_, err = LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("listen_port: [oops"), 0o644))
	_, err = LoadConfigFromFile(bad)
	assert.Error(t, err)
}

func TestLoadEffectiveConfigExplicitPath(t *testing.T) {
	// Point HOME somewhere empty so no real global config leaks in.
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("direction: horizontal\n"), 0o644))

	cfg, err := LoadEffectiveConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "horizontal", cfg.Direction)
	// Defaults fill everything the file does not mention.
	assert.Equal(t, DefaultConfig().BackendURL, cfg.BackendURL)
}

func TestEffectiveStreamURL(t *testing.T) {
	cfg := &Config{BackendURL: "http://127.0.0.1:8000"}
	assert.Equal(t, "ws://127.0.0.1:8000/ws", cfg.EffectiveStreamURL())

	cfg = &Config{BackendURL: "https://crew.example.com/api/"}
	assert.Equal(t, "wss://crew.example.com/api/ws", cfg.EffectiveStreamURL())

	cfg = &Config{BackendURL: "http://127.0.0.1:8000", StreamURL: "ws://elsewhere:9/updates"}
	assert.Equal(t, "ws://elsewhere:9/updates", cfg.EffectiveStreamURL())
}

func TestListenAddr(t *testing.T) {
	cfg := &Config{ListenHost: "0.0.0.0", ListenPort: 5173}
	assert.Equal(t, "0.0.0.0:5173", cfg.ListenAddr())
}
