package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"server": { "listen": ":8080" },
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, ":8080", viper.GetString("server.listen"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, ":3000", viper.GetString("server.listen"))
	assert.Equal(t, "X-User", viper.GetString("server.actorHeader"))
	assert.Equal(t, 40, viper.GetInt("server.actorMaxLen"))
	assert.Equal(t, "json", viper.GetString("storage.type"))
	assert.Equal(t, "./data.json", viper.GetString("storage.json.path"))
	assert.Equal(t, 256, viper.GetInt("audit.queueSize"))
	assert.Equal(t, true, viper.GetBool("audit.file.enabled"))
	assert.Equal(t, false, viper.GetBool("audit.git.enabled"))
	assert.Equal(t, "3s", viper.GetString("client.pollInterval"))
	assert.Equal(t, "X-User", viper.GetString("client.actorHeader"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
	assert.Equal(t, "mapsync", viper.GetString("otel.serviceName"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")

	// defaults still apply
	assert.Equal(t, ":3000", GetServerConfig().Listen)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("MAPSYNC_SERVER_LISTEN", ":9999")

	require.NoError(t, Load(writeConfig(t, `{}`)))
	assert.Equal(t, ":9999", GetServerConfig().Listen)
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"sqlite": { "path": "/tmp/map.db" }
		},
		"db": { "database": "maps" }
	}`)
	require.NoError(t, Load(dir))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/map.db", sc.SQLite.Path)
	assert.Equal(t, "./data.json", sc.JSON.Path)
	assert.Equal(t, "maps", sc.DB.Database)
	assert.Equal(t, "postgres", sc.DB.Username)
}

func TestGetAuditConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	ac := GetAuditConfig()
	assert.Equal(t, 256, ac.QueueSize)
	assert.Equal(t, 1, ac.Workers)
	assert.Equal(t, 30*time.Second, ac.MaxElapsed)
	assert.True(t, ac.File.Enabled)
	assert.Equal(t, "./audit.log", ac.File.Path)
	assert.False(t, ac.Gelf.Enabled)
	assert.Equal(t, "localhost:12201", ac.Gelf.Address)
	assert.False(t, ac.Influx.Enabled)
	assert.Equal(t, "audit", ac.Influx.Bucket)
}

func TestGetClientConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"client": {
			"serverUrl": "http://map.local:3000",
			"actor": "gm",
			"actorHeader": "X-Player",
			"pollInterval": "500ms",
			"rollbackOnFailure": true
		}
	}`)
	require.NoError(t, Load(dir))

	cc := GetClientConfig()
	assert.Equal(t, "http://map.local:3000", cc.ServerURL)
	assert.Equal(t, "gm", cc.Actor)
	assert.Equal(t, "X-Player", cc.ActorHeader)
	assert.Equal(t, 500*time.Millisecond, cc.PollInterval)
	assert.Equal(t, 10*time.Second, cc.RequestTimeout)
	assert.True(t, cc.RollbackOnFailure)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "mapsync", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}
