package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "mapsync.cfg.json"

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Listen       string `json:"listen" mapstructure:"listen"`
	ActorHeader  string `json:"actorHeader" mapstructure:"actorHeader"`
	ActorMaxLen  int    `json:"actorMaxLen" mapstructure:"actorMaxLen"`
	MaxBodyBytes int64  `json:"maxBodyBytes" mapstructure:"maxBodyBytes"`
	GinMode      string `json:"ginMode" mapstructure:"ginMode"`
}

// DBConfig holds Postgres connection settings
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// JSONConfig holds settings for the single-file JSON store
type JSONConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// SQLiteConfig holds settings for the SQLite store
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// StorageConfig selects and configures the persistence backend
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	JSON   JSONConfig   `json:"json" mapstructure:"json"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
	DB     DBConfig     `json:"db" mapstructure:"db"`
}

// AuditFileConfig configures the JSON-lines audit log
type AuditFileConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// AuditGitConfig configures the git commit audit trail
type AuditGitConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	RepoDir     string `json:"repoDir" mapstructure:"repoDir"`
	AuthorEmail string `json:"authorEmail" mapstructure:"authorEmail"`
}

// AuditGelfConfig configures the Graylog audit sink
type AuditGelfConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// AuditInfluxConfig configures the InfluxDB audit sink
type AuditInfluxConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Token   string `json:"token" mapstructure:"token"`
	Org     string `json:"org" mapstructure:"org"`
	Bucket  string `json:"bucket" mapstructure:"bucket"`
}

// AuditConfig holds the audit queue and sink settings
type AuditConfig struct {
	QueueSize  int               `json:"queueSize" mapstructure:"queueSize"`
	Workers    int               `json:"workers" mapstructure:"workers"`
	MaxElapsed time.Duration     `json:"maxElapsed" mapstructure:"maxElapsed"`
	File       AuditFileConfig   `json:"file" mapstructure:"file"`
	Git        AuditGitConfig    `json:"git" mapstructure:"git"`
	Gelf       AuditGelfConfig   `json:"gelf" mapstructure:"gelf"`
	Influx     AuditInfluxConfig `json:"influx" mapstructure:"influx"`
}

// ClientConfig holds sync client settings
type ClientConfig struct {
	ServerURL         string        `json:"serverUrl" mapstructure:"serverUrl"`
	Actor             string        `json:"actor" mapstructure:"actor"`
	ActorHeader       string        `json:"actorHeader" mapstructure:"actorHeader"`
	PollInterval      time.Duration `json:"pollInterval" mapstructure:"pollInterval"`
	RequestTimeout    time.Duration `json:"requestTimeout" mapstructure:"requestTimeout"`
	RollbackOnFailure bool          `json:"rollbackOnFailure" mapstructure:"rollbackOnFailure"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("server.listen", ":3000")
	viper.SetDefault("server.actorHeader", "X-User")
	viper.SetDefault("server.actorMaxLen", 40)
	viper.SetDefault("server.maxBodyBytes", 1<<20)
	viper.SetDefault("server.ginMode", "release")

	viper.SetDefault("storage.type", "json")
	viper.SetDefault("storage.json.path", "./data.json")
	viper.SetDefault("storage.sqlite.path", "./mapsync.db")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "mapsync")

	viper.SetDefault("audit.queueSize", 256)
	viper.SetDefault("audit.workers", 1)
	viper.SetDefault("audit.maxElapsed", "30s")
	viper.SetDefault("audit.file.enabled", true)
	viper.SetDefault("audit.file.path", "./audit.log")
	viper.SetDefault("audit.git.enabled", false)
	viper.SetDefault("audit.git.repoDir", ".")
	viper.SetDefault("audit.git.authorEmail", "mapsync@localhost")
	viper.SetDefault("audit.gelf.enabled", false)
	viper.SetDefault("audit.gelf.address", "localhost:12201")
	viper.SetDefault("audit.influx.enabled", false)
	viper.SetDefault("audit.influx.url", "http://localhost:8086")
	viper.SetDefault("audit.influx.token", "")
	viper.SetDefault("audit.influx.org", "mapsync")
	viper.SetDefault("audit.influx.bucket", "audit")

	viper.SetDefault("client.serverUrl", "http://localhost:3000")
	viper.SetDefault("client.actor", "anon")
	viper.SetDefault("client.actorHeader", "X-User")
	viper.SetDefault("client.pollInterval", "3s")
	viper.SetDefault("client.requestTimeout", "10s")
	viper.SetDefault("client.rollbackOnFailure", false)

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "mapsync")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from the JSON file in configDir and sets default values.
// Defaults and MAPSYNC_ environment overrides stay in effect when the file is missing.
func Load(configDir string) error {
	SetDefaults()

	viper.SetEnvPrefix("MAPSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetServerConfig returns the HTTP server settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Listen:       viper.GetString("server.listen"),
		ActorHeader:  viper.GetString("server.actorHeader"),
		ActorMaxLen:  viper.GetInt("server.actorMaxLen"),
		MaxBodyBytes: viper.GetInt64("server.maxBodyBytes"),
		GinMode:      viper.GetString("server.ginMode"),
	}
}

// GetStorageConfig returns the persistence backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:   viper.GetString("storage.type"),
		JSON:   JSONConfig{Path: viper.GetString("storage.json.path")},
		SQLite: SQLiteConfig{Path: viper.GetString("storage.sqlite.path")},
		DB: DBConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
		},
	}
}

// GetAuditConfig returns the audit queue and sink settings.
func GetAuditConfig() AuditConfig {
	return AuditConfig{
		QueueSize:  viper.GetInt("audit.queueSize"),
		Workers:    viper.GetInt("audit.workers"),
		MaxElapsed: viper.GetDuration("audit.maxElapsed"),
		File: AuditFileConfig{
			Enabled: viper.GetBool("audit.file.enabled"),
			Path:    viper.GetString("audit.file.path"),
		},
		Git: AuditGitConfig{
			Enabled:     viper.GetBool("audit.git.enabled"),
			RepoDir:     viper.GetString("audit.git.repoDir"),
			AuthorEmail: viper.GetString("audit.git.authorEmail"),
		},
		Gelf: AuditGelfConfig{
			Enabled: viper.GetBool("audit.gelf.enabled"),
			Address: viper.GetString("audit.gelf.address"),
		},
		Influx: AuditInfluxConfig{
			Enabled: viper.GetBool("audit.influx.enabled"),
			URL:     viper.GetString("audit.influx.url"),
			Token:   viper.GetString("audit.influx.token"),
			Org:     viper.GetString("audit.influx.org"),
			Bucket:  viper.GetString("audit.influx.bucket"),
		},
	}
}

// GetClientConfig returns the sync client settings.
func GetClientConfig() ClientConfig {
	return ClientConfig{
		ServerURL:         viper.GetString("client.serverUrl"),
		Actor:             viper.GetString("client.actor"),
		ActorHeader:       viper.GetString("client.actorHeader"),
		PollInterval:      viper.GetDuration("client.pollInterval"),
		RequestTimeout:    viper.GetDuration("client.requestTimeout"),
		RollbackOnFailure: viper.GetBool("client.rollbackOnFailure"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
