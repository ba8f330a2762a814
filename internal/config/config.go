// Package config loads client settings from a YAML file with environment
// overrides, and rebuilds them on file change.
package config

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	keyServerHost        = "server.host"
	keyServerPort        = "server.port"
	keyUsername          = "server.username"
	keyPassword          = "server.password"
	keyReconnectInterval = "server.reconnect_interval"
	keyDatabasePath      = "database.path"
	keyObserverPort      = "observer.port"
	keyLogFile           = "log.file"
	keyLogMaxSizeMB      = "log.max_size_mb"
	keyLogMaxBackups     = "log.max_backups"
)

// envKeyReplacer maps "server.host" to the SCHEDC_SERVER_HOST form.
var envKeyReplacer = strings.NewReplacer(".", "_")

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# schedc configuration

server:
  host: localhost
  port: 4815
  # username:
  # password:
  reconnect_interval: 1s

database:
  # path defaults to schedule.db inside the config directory
  # path:

observer:
  # WebSocket event bridge; 0 disables it
  port: 0

log:
  # file defaults to stderr; set a path to enable rotation
  # file:
  max_size_mb: 10
  max_backups: 3
`

// Config holds every client setting.
type Config struct {
	ServerHost        string
	ServerPort        int
	Username          string
	Password          string
	ReconnectInterval time.Duration

	DatabasePath string

	// ObserverPort serves the WebSocket event bridge; zero disables it.
	ObserverPort int

	// LogFile enables rotated file logging; empty means stderr.
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

// ServerAddr returns the host:port dial target.
func (c Config) ServerAddr() string {
	return net.JoinHostPort(c.ServerHost, strconv.Itoa(c.ServerPort))
}

// DefaultDir returns the per-user config directory.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "schedc"), nil
}

// Load reads config.yaml from dir, creating the directory and a default
// file on first run. Environment variables prefixed SCHEDC_ override file
// values (SCHEDC_SERVER_HOST, SCHEDC_SERVER_PASSWORD, ...).
//
// The returned viper instance backs Watch; most callers only need the
// Config.
func Load(dir string) (Config, *viper.Viper, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Config{}, nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultFile(dir); err != nil {
		return Config{}, nil, err
	}

	v := viper.New()
	v.SetDefault(keyServerHost, "localhost")
	v.SetDefault(keyServerPort, 4815)
	v.SetDefault(keyReconnectInterval, time.Second)
	v.SetDefault(keyDatabasePath, filepath.Join(dir, "schedule.db"))
	v.SetDefault(keyObserverPort, 0)
	v.SetDefault(keyLogMaxSizeMB, 10)
	v.SetDefault(keyLogMaxBackups, 3)

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(dir)
	v.SetEnvPrefix("schedc")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, nil, fmt.Errorf("read config: %w", err)
		}
	}

	return fromViper(v), v, nil
}

// Watch reloads the config whenever the file changes and hands the new
// snapshot to onChange. It returns immediately; viper watches in the
// background.
func Watch(v *viper.Viper, logger *log.Logger, onChange func(Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Printf("config reloaded: %s (%s)", e.Name, e.Op)
		onChange(fromViper(v))
	})
	v.WatchConfig()
}

func fromViper(v *viper.Viper) Config {
	return Config{
		ServerHost:        v.GetString(keyServerHost),
		ServerPort:        v.GetInt(keyServerPort),
		Username:          v.GetString(keyUsername),
		Password:          v.GetString(keyPassword),
		ReconnectInterval: v.GetDuration(keyReconnectInterval),
		DatabasePath:      v.GetString(keyDatabasePath),
		ObserverPort:      v.GetInt(keyObserverPort),
		LogFile:           v.GetString(keyLogFile),
		LogMaxSizeMB:      v.GetInt(keyLogMaxSizeMB),
		LogMaxBackups:     v.GetInt(keyLogMaxBackups),
	}
}

func ensureDefaultFile(dir string) error {
	path := filepath.Join(dir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
