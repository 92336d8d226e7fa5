package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// envPrefix is stripped from every environment variable before mapping.
	envPrefix = "SPAM_"
	// configFileEnv names an optional YAML, TOML or JSON file applied
	// after the defaults and before the environment.
	configFileEnv = "SPAM_CONFIG_FILE"
)

// sections are the nested config groups. SPAM_<SECTION>_<KEY> maps to section.key;
// only the first underscore after the section name is a separator.
var sections = []string{"log", "classifier", "fetch", "blocklist", "api"}

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log        LoggingConfig    `koanf:"log"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Fetch      FetchConfig      `koanf:"fetch"`
	Blocklist  BlocklistConfig  `koanf:"blocklist"`
	API        APIConfig        `koanf:"api"`
}

type LoggingConfig struct {
	// Level controls log verbosity: "debug", "info", "warn", or "error".
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

// ClassifierConfig bounds the work done for a single check.
type ClassifierConfig struct {
	// Depth is the redirection budget used when a request does not name one.
	Depth int `koanf:"depth" validate:"gte=0,ltefield=MaxDepth"`
	// MaxDepth is the largest budget a request may ask for.
	MaxDepth    int `koanf:"max_depth" validate:"gte=0,lte=16"`
	Parallelism int `koanf:"parallelism" validate:"gte=1,lte=256"`
	MaxFetches  int `koanf:"max_fetches" validate:"gte=1,lte=1024"`
}

// FetchConfig tunes the HTTP client used to follow links.
type FetchConfig struct {
	// Timeout per request, in seconds.
	Timeout   int     `koanf:"timeout" validate:"gte=1,lte=300"`
	MaxBody   int64   `koanf:"max_body" validate:"gte=1024"`
	UserAgent string  `koanf:"user_agent" validate:"required"`
	Rate      float64 `koanf:"rate" validate:"gt=0"`
	Burst     int     `koanf:"burst" validate:"gte=1"`
}

// BlocklistConfig locates the list files and the index built from them.
type BlocklistConfig struct {
	Directory string  `koanf:"dir" validate:"required"`
	DB        string  `koanf:"db" validate:"required"`
	CacheSize int     `koanf:"cache_size" validate:"gte=0"`
	FPRate    float64 `koanf:"fp_rate" validate:"gt=0,lt=1"`
}

type APIConfig struct {
	Listen string `koanf:"listen" validate:"required,host_port"`
}

// DEFAULT_APP_CONFIG defines the default application configuration settings for the spam service.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LoggingConfig{Level: "info"},
	Classifier: ClassifierConfig{
		Depth:       1,
		MaxDepth:    5,
		Parallelism: 8,
		MaxFetches:  16,
	},
	Fetch: FetchConfig{
		Timeout:   10,
		MaxBody:   2 << 20,
		UserAgent: "rr-spamd/0.1 (+https://github.com/haukened/rr-spam)",
		Rate:      5,
		Burst:     5,
	},
	Blocklist: BlocklistConfig{
		Directory: "/etc/rr-spam/blocklist.d/",
		DB:        "/var/lib/rr-spam/blocklist.db",
		CacheSize: 10000,
		FPRate:    0.01,
	},
	API: APIConfig{Listen: ":8080"},
}

// validHostPort accepts "host:port" and ":port" with a port between 1 and 65535.
// The host, when present, must be an IP address or a plausible host name.
func validHostPort(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || port == "" {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	if err != nil || portNum == 0 {
		return false
	}
	if host == "" || net.ParseIP(host) != nil {
		return true
	}
	return !strings.ContainsAny(host, " /\\@")
}

// envKey maps a prefixed environment variable name onto a koanf key.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, envPrefix))
	for _, s := range sections {
		if strings.HasPrefix(key, s+"_") {
			return s + "." + strings.TrimPrefix(key, s+"_")
		}
	}
	return key
}

// envLoader loads SPAM_ environment variables; it can be replaced in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKey(key), strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// fileLoader loads a config file, picking the parser from its extension.
var fileLoader = func(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".toml":
		parser = toml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file type: %s", path)
	}
	return k.Load(file.Provider(path), parser)
}

// registerValidation registers the custom "host_port" rule.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("host_port", validHostPort)
}

// Load builds an AppConfig from defaults, the optional config file and
// SPAM_ environment variables, in that order, then validates it.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if path := os.Getenv(configFileEnv); path != "" {
		if err := fileLoader(k, path); err != nil {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}

	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	err = registerValidation(validate)
	if err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
