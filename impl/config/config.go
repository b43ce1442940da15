package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// TlsCfg configures the client side of TLS for image fetches
type TlsCfg struct {
	Cert               string `yaml:"cert"`
	Key                string `yaml:"key"`
	CA                 string `yaml:"ca"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
}

// ServerTlsCfg configures the server side of TLS for the HTTP front end
type ServerTlsCfg struct {
	Cert       string `yaml:"cert"`
	Key        string `yaml:"key"`
	CA         string `yaml:"ca"`
	ClientAuth string `yaml:"clientAuth"`
}

// ListConfig configures the list sub-command
type ListConfig struct {
	Header bool   `yaml:"header"`
	Sort   string `yaml:"sort"`
}

// Configuration represents the totality of configuration knobs and dials for the server.
type Configuration struct {
	LogLevel         string       `yaml:"logLevel"`
	LogFile          string       `yaml:"logFile"`
	ConfigFile       string       `yaml:"configFile"`
	CachePath        string       `yaml:"cachePath"`
	CacheVersion     int          `yaml:"cacheVersion"`
	MemoryCacheBytes int64        `yaml:"memoryCacheBytes"`
	DiskCacheBytes   int64        `yaml:"diskCacheBytes"`
	FetchTimeout     string       `yaml:"fetchTimeout"`
	Workers          int64        `yaml:"workers"`
	Port             int64        `yaml:"port"`
	Metrics          int64        `yaml:"metrics"`
	Health           int64        `yaml:"health"`
	PreloadFile      string       `yaml:"preloadFile"`
	UserAgent        string       `yaml:"userAgent"`
	UpstreamTls      TlsCfg       `yaml:"upstreamTls"`
	ServerTlsCfg     ServerTlsCfg `yaml:"serverTlsConfig"`
	ListConfig       ListConfig   `yaml:"listConfig"`
}

// FromCmdLine has a flag for every command-line option. The parsing code
// sets the flag to true if the option was explicitly provided on the command
// line by the user.
type FromCmdLine struct {
	Command          string
	LogLevel         bool
	LogFile          bool
	ConfigFile       bool
	CachePath        bool
	CacheVersion     bool
	MemoryCacheBytes bool
	DiskCacheBytes   bool
	FetchTimeout     bool
	Workers          bool
	Port             bool
	Metrics          bool
	Health           bool
	PreloadFile      bool
	UserAgent        bool
	ListConfig       bool
}

// DefaultFetchTimeout bounds connect plus read of one image fetch
const DefaultFetchTimeout = 30 * time.Second

var (
	mu     sync.RWMutex
	config Configuration
)

func GetLogLevel() string {
	mu.RLock()
	defer mu.RUnlock()
	return config.LogLevel
}

func GetLogFile() string {
	mu.RLock()
	defer mu.RUnlock()
	return config.LogFile
}

func GetConfigFile() string {
	mu.RLock()
	defer mu.RUnlock()
	return config.ConfigFile
}

func GetCachePath() string {
	mu.RLock()
	defer mu.RUnlock()
	return config.CachePath
}

func GetCacheVersion() int {
	mu.RLock()
	defer mu.RUnlock()
	return config.CacheVersion
}

func GetMemoryCacheBytes() int64 {
	mu.RLock()
	defer mu.RUnlock()
	return config.MemoryCacheBytes
}

func GetDiskCacheBytes() int64 {
	mu.RLock()
	defer mu.RUnlock()
	return config.DiskCacheBytes
}

// GetFetchTimeout parses the configured fetch timeout, falling back to the
// default if it is empty or unparseable.
func GetFetchTimeout() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	if d, err := time.ParseDuration(config.FetchTimeout); err == nil && d > 0 {
		return d
	}
	return DefaultFetchTimeout
}

func GetWorkers() int64 {
	mu.RLock()
	defer mu.RUnlock()
	return config.Workers
}

func GetPort() int64 {
	mu.RLock()
	defer mu.RUnlock()
	return config.Port
}

func GetMetrics() int64 {
	mu.RLock()
	defer mu.RUnlock()
	return config.Metrics
}

func GetHealth() int64 {
	mu.RLock()
	defer mu.RUnlock()
	return config.Health
}

func GetPreloadFile() string {
	mu.RLock()
	defer mu.RUnlock()
	return config.PreloadFile
}

func SetPreloadFile(newVal string) {
	mu.Lock()
	defer mu.Unlock()
	config.PreloadFile = newVal
}

func GetUserAgent() string {
	mu.RLock()
	defer mu.RUnlock()
	return config.UserAgent
}

func GetUpstreamTls() TlsCfg {
	mu.RLock()
	defer mu.RUnlock()
	return config.UpstreamTls
}

func GetServerTlsCfg() ServerTlsCfg {
	mu.RLock()
	defer mu.RUnlock()
	return config.ServerTlsCfg
}

func GetListConfig() ListConfig {
	mu.RLock()
	defer mu.RUnlock()
	return config.ListConfig
}

// Load loads the passed configuration file into the configuration struct
func Load(configFile string) error {
	if _, err := os.Stat(configFile); err != nil {
		return fmt.Errorf("unable to stat configuration file: %s", configFile)
	}
	if contents, err := os.ReadFile(configFile); err != nil {
		return fmt.Errorf("error reading configuration file: %s", configFile)
	} else if err := SetConfigFromStr(contents); err != nil {
		return fmt.Errorf("error parsing configuration file: %s, the error was: %w", configFile, err)
	}
	return nil
}

// Parse parses the passed configuration file without touching the current configuration
func Parse(configFile string) (Configuration, error) {
	var cfg Configuration
	contents, err := os.ReadFile(configFile)
	if err != nil {
		return cfg, fmt.Errorf("error reading configuration file: %s: %w", configFile, err)
	}
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return cfg, fmt.Errorf("error parsing configuration file: %s: %w", configFile, err)
	}
	return cfg, nil
}

// Get gets the current configuration
func Get() Configuration {
	mu.RLock()
	defer mu.RUnlock()
	return config
}

// Set replaces the configuration with the passed configuration
func Set(cfg Configuration) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
}

// SetConfigFromStr parses the yaml input and sets the configuration from it
func SetConfigFromStr(configBytes []byte) error {
	var cfg Configuration
	if err := yaml.Unmarshal(configBytes, &cfg); err != nil {
		return err
	}
	Set(cfg)
	return nil
}

// ToYaml renders the current configuration, e.g. for logging at startup
func ToYaml() (string, error) {
	b, err := yaml.Marshal(Get())
	if err != nil {
		return "", err
	}
	return string(b), nil
}
