package config

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	require.Equal(t, "127.0.0.1", cfg.WebServer.Host)
	require.Equal(t, uint16(8080), cfg.WebServer.Port)
	require.True(t, cfg.Queue.Find.Recursive)
	require.False(t, cfg.Election.Enabled)
	require.Equal(t, 2, cfg.Election.VotesMinCount)
}

func TestDurationMarshalsAsString(t *testing.T) {
	d := Duration(100 * time.Millisecond)
	data, err := json.Marshal(d)
	require.NoError(t, err)
	require.Equal(t, `"100ms"`, string(data))

	var back Duration
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, 100*time.Millisecond, back.Std())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dloghw.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"web_server": {"host": "0.0.0.0", "port": 9090},
		"election": {"votes_min_count": 5}
	}`), 0o644))

	cfg, err := LoadFile(Default(), path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.WebServer.Host)
	require.Equal(t, uint16(9090), cfg.WebServer.Port)
	require.Equal(t, 5, cfg.Election.VotesMinCount)
	// Untouched fields retain their defaults.
	require.True(t, cfg.Queue.Find.Recursive)
}

func TestLoadFileMissingIsNotAnError(t *testing.T) {
	cfg, err := LoadFile(Default(), filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Equal(t, Default().WebServer, cfg.WebServer)
}

func TestFindUpLocatesFileInParent(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	marker := filepath.Join(root, "dloghw.json")
	require.NoError(t, os.WriteFile(marker, []byte(`{}`), 0o644))

	found, ok := FindUp(sub, "dloghw.json")
	require.True(t, ok)
	require.Equal(t, marker, found)
}

func TestFindUpNotFound(t *testing.T) {
	_, ok := FindUp(t.TempDir(), "does-not-exist.json")
	require.False(t, ok)
}

func TestLoadAppliesFlagPrecedenceOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"web_server": {"host": "10.0.0.1", "port": 7000}}`), 0o644))

	fs := flag.NewFlagSet("logd", flag.ContinueOnError)
	cfg, err := Load(fs, []string{"-config", path, "-port", "9999"})
	require.NoError(t, err)

	require.Equal(t, "10.0.0.1", cfg.WebServer.Host)   // from file, not overridden
	require.Equal(t, uint16(9999), cfg.WebServer.Port) // flag wins over file
}

func TestNodeIDResolveGeneratesWhenEmpty(t *testing.T) {
	id := NodeID{}
	name := id.Resolve()
	require.Len(t, name, 8)
	require.Equal(t, name, id.Resolve()) // cached, stable across calls
}

func TestNodeIDResolveKeepsConfiguredName(t *testing.T) {
	id := NodeID{Name: "node-a"}
	require.Equal(t, "node-a", id.Resolve())
}
