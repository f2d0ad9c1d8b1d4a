package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sardine-ai/go-config-sync/client"
	"github.com/sardine-ai/go-config-sync/model"
	"github.com/sardine-ai/go-config-sync/server"
	"github.com/sardine-ai/go-config-sync/source"
)

func TestLoadSettings(t *testing.T) {
	settings, err := loadSettings("")
	require.NoError(t, err)
	assert.Equal(t, defaultAddr, settings.Addr)
	assert.Equal(t, "file", settings.Repository.Type)

	path := filepath.Join(t.TempDir(), "configsync.yaml")
	data := `addr: 127.0.0.1:9000
auth_key: secret
repository:
  type: s3
  bucket: settings
  object: reveal/config.json
  region: eu-west-1
  endpoint: http://127.0.0.1:9001
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	settings, err = loadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, serveSettings{
		Addr:    "127.0.0.1:9000",
		AuthKey: "secret",
		Repository: source.Settings{
			Type:     "s3",
			Bucket:   "settings",
			Object:   "reveal/config.json",
			Region:   "eu-west-1",
			Endpoint: "http://127.0.0.1:9001",
		},
	}, settings)
}

func TestLoadSettingsRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("adr: typo\n"), 0o600))
	_, err := loadSettings(path)
	assert.Error(t, err)

	_, err = loadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplySetFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "set"}
	addSetFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--auto-accept=false", "--accept-delay", "900", "--multi-provider", "ugg"}))

	cfg := model.Default()
	require.NoError(t, applySetFlags(cmd, &cfg))
	assert.Equal(t, model.Config{
		AutoOpen:      true,
		AutoAccept:    false,
		AcceptDelay:   900,
		MultiProvider: "ugg",
		AutoReport:    false,
	}, cfg)
}

func TestWebsocketURL(t *testing.T) {
	testCases := map[string]string{
		"http://127.0.0.1:4317":       "ws://127.0.0.1:4317/ws",
		"https://backend.local/base/": "wss://backend.local/base/ws",
	}
	for in, want := range testCases {
		got, err := websocketURL(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := websocketURL("ftp://x")
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	assert.NoError(t, setupLogging("debug", "json"))
	assert.NoError(t, setupLogging("info", "text"))
	assert.Error(t, setupLogging("loud", "text"))
	assert.Error(t, setupLogging("info", "xml"))
}

func TestGetAndSetCommands(t *testing.T) {
	ctx := context.Background()
	repo := source.NewMemoryRepository(nil)
	backend, err := server.NewBackend(ctx, repo)
	require.NoError(t, err)
	testServer := httptest.NewServer(server.NewServer(backend).CreateHandlers())
	defer testServer.Close()

	original := newConfigSync
	defer func() { newConfigSync = original }()
	newConfigSync = func() (*client.ConfigSync, error) {
		dispatcher, err := client.NewHTTPDispatcher(testServer.URL, "")
		if err != nil {
			return nil, err
		}
		return client.NewConfigSync(dispatcher), nil
	}

	snapshot := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(snapshot, []byte(
		`{"autoOpen":true,"autoAccept":false,"acceptDelay":500,"multiProvider":"default","autoReport":true}`), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"set", "--file", snapshot})
	require.NoError(t, rootCmd.ExecuteContext(ctx))

	want := model.Config{AutoOpen: true, AcceptDelay: 500, MultiProvider: "default", AutoReport: true}
	assert.Equal(t, want, backend.Config())

	out.Reset()
	rootCmd.SetArgs([]string{"get"})
	require.NoError(t, rootCmd.ExecuteContext(ctx))
	var got model.Config
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, want, got)
}
