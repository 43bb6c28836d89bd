// Package config loads bridge configuration from defaults, an optional
// YAML file, ELX_* environment variables and command line flags.
package config

import (
	"net/http"
	"os"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/joshp123/electrolux-bridge/internal/electrolux"
	"github.com/joshp123/electrolux-bridge/internal/logging"
	"github.com/joshp123/electrolux-bridge/internal/mqtt"
	"github.com/joshp123/electrolux-bridge/internal/rate"
	"github.com/joshp123/electrolux-bridge/internal/settings"
)

const (
	EnvPrefix           = "ELX"
	DefaultConfigPath   = "~/.config/elxbridge/config.yaml"
	DefaultSettingsPath = "~/.config/elxbridge/settings.json"
	DefaultHTTPAddr     = "0.0.0.0:8080"
	DefaultGRPCAddr     = "0.0.0.0:9000"
)

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type SettingsConfig struct {
	Path string
	Blob settings.BlobConfig
}

type ServerConfig struct {
	HTTPAddr        string
	GRPCAddr        string
	CORSOrigins     []string
	GracefulTimeout time.Duration
}

type Config struct {
	API      APIConfig
	Settings SettingsConfig
	MQTT     mqtt.Config
	Server   ServerConfig
	Rate     rate.Config
}

// New returns a viper instance with every default registered and the
// environment bound. api.base_url is read from ELX_API_BASE_URL.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	logging.SetDefaults(v)
	return v
}

// SetDefaults registers the bridge keys on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", electrolux.DefaultBaseURL)
	v.SetDefault("api.timeout", electrolux.DefaultTimeout)
	v.SetDefault("settings.path", DefaultSettingsPath)
	v.SetDefault("settings.blob.endpoint", "")
	v.SetDefault("settings.blob.bucket", "")
	v.SetDefault("settings.blob.prefix", "elxbridge")
	v.SetDefault("settings.blob.region", "")
	v.SetDefault("settings.blob.access_key_file", "")
	v.SetDefault("settings.blob.secret_key_file", "")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.prefix", mqtt.DefaultPrefix)
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.connect_timeout", 10*time.Second)
	v.SetDefault("server.http_addr", DefaultHTTPAddr)
	v.SetDefault("server.grpc_addr", DefaultGRPCAddr)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.graceful_timeout", 15*time.Second)
	v.SetDefault("rate.per_minute", 0)
	v.SetDefault("rate.per_day", 0)
	v.SetDefault("rate.cache_ttl", 0)
}

// ReadFile merges the YAML file at path into v. A missing file is only an
// error when the path was given explicitly.
func ReadFile(v *viper.Viper, path string, explicit bool) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return errors.Wrapf(err, "expand %s", path)
	}
	if _, err := os.Stat(expanded); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return errors.Wrapf(err, "config file %s", expanded)
	}
	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read config %s", expanded)
	}
	return nil
}

// Load builds a validated Config from v.
func Load(v *viper.Viper) (Config, error) {
	settingsPath, err := homedir.Expand(v.GetString("settings.path"))
	if err != nil {
		return Config{}, errors.Wrap(err, "expand settings.path")
	}
	cfg := Config{
		API: APIConfig{
			BaseURL: strings.TrimRight(v.GetString("api.base_url"), "/"),
			Timeout: v.GetDuration("api.timeout"),
		},
		Settings: SettingsConfig{
			Path: settingsPath,
			Blob: settings.BlobConfig{
				Endpoint:      v.GetString("settings.blob.endpoint"),
				Bucket:        v.GetString("settings.blob.bucket"),
				Prefix:        v.GetString("settings.blob.prefix"),
				Region:        v.GetString("settings.blob.region"),
				AccessKeyFile: v.GetString("settings.blob.access_key_file"),
				SecretKeyFile: v.GetString("settings.blob.secret_key_file"),
			},
		},
		MQTT: mqtt.Config{
			Broker:         v.GetString("mqtt.broker"),
			Username:       v.GetString("mqtt.username"),
			Password:       v.GetString("mqtt.password"),
			ClientID:       v.GetString("mqtt.client_id"),
			Prefix:         v.GetString("mqtt.prefix"),
			QoS:            byte(v.GetUint("mqtt.qos")),
			ConnectTimeout: v.GetDuration("mqtt.connect_timeout"),
		},
		Server: ServerConfig{
			HTTPAddr:        v.GetString("server.http_addr"),
			GRPCAddr:        v.GetString("server.grpc_addr"),
			CORSOrigins:     v.GetStringSlice("server.cors_origins"),
			GracefulTimeout: v.GetDuration("server.graceful_timeout"),
		},
		Rate: rate.Config{
			Provider:  "electrolux",
			PerMinute: v.GetInt("rate.per_minute"),
			PerDay:    v.GetInt("rate.per_day"),
			CacheTTL:  v.GetDuration("rate.cache_ttl"),
			Exempt:    refreshExempt,
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// refreshExempt keeps token refreshes out of the request budget so an
// exhausted budget never lets the session lapse.
func refreshExempt(method, path string) bool {
	return method == http.MethodPost && strings.HasSuffix(path, "/token/refresh")
}

// Validate enforces invariants viper cannot express.
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}
	if c.Settings.Path == "" {
		return errors.New("settings.path is required")
	}
	if c.Settings.Blob.Enabled() && (c.Settings.Blob.AccessKeyFile == "" || c.Settings.Blob.SecretKeyFile == "") {
		return errors.New("settings.blob.access_key_file and settings.blob.secret_key_file are required with a bucket")
	}
	if c.MQTT.QoS > 2 {
		return errors.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.Server.HTTPAddr == "" && c.Server.GRPCAddr == "" {
		return errors.New("at least one of server.http_addr and server.grpc_addr is required")
	}
	if c.Rate.PerMinute < 0 || c.Rate.PerDay < 0 {
		return errors.New("rate limits cannot be negative")
	}
	return nil
}

// CheckRequired reports every key in keys that has no value.
func CheckRequired(v *viper.Viper, keys ...string) error {
	var missing []string
	for _, key := range keys {
		if !v.IsSet(key) || v.GetString(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	item := "item"
	if len(missing) > 1 {
		item = "items"
	}
	return errors.Errorf("required config %s `%s` not set", item, strings.Join(missing, "`, `"))
}
