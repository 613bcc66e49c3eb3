package config

import (
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

type Config struct {
	APIBaseURL                string        `koanf:"api_base_url" required:"true"`
	CacheDir                  string        `koanf:"cache_dir" default:"/cache"`
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" default:"5s"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" default:"5"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" default:"2s"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseFilePath          string        `koanf:"database_file_path" required:"true"`
	DispatchIdleTimeout       time.Duration `koanf:"dispatch_idle_timeout" default:"12h"`
	DispatchResetDelay        time.Duration `koanf:"dispatch_reset_delay" default:"2s"`
	FrontendURL               string        `koanf:"frontend_url"`
	Hostname                  string        `koanf:"-"`
	JWTSecret                 string        `koanf:"jwt_secret" required:"true"`
	PrintResetDelay           time.Duration `koanf:"print_reset_delay" default:"2s"`
	ServerHost                string        `koanf:"server_host" default:"0.0.0.0"`
	ServerPort                int           `koanf:"server_port" default:"3690"`
	UploadChunkSize           int           `koanf:"upload_chunk_size" default:"100"`
	UpstreamRejectStatus      int           `koanf:"upstream_reject_status" default:"403"`
	UpstreamTimeout           time.Duration `koanf:"upstream_timeout" default:"30s"`
	WorkerPollInterval        time.Duration `koanf:"worker_poll_interval" default:"2s"`
	WorkerProcesses           int           `koanf:"worker_processes" default:"2"`
}

const (
	environmentENV = "ENVIRONMENT"
	configFileENV  = "CONFIG_FILE"

	defaultConfigFile = "/config/console.yaml"
)

// New loads the config file (if there is one), then lets environment
// variables override it, and finally fills in defaults for anything left
// unset.
func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	configFile := os.Getenv(configFileENV)
	if configFile == "" {
		configFile = defaultConfigFile
	}
	if _, err := os.Stat(configFile); err == nil {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", configFile)
		}
	}

	known := knownKeys()
	err = k.Load(env.Provider("", ".", func(key string) string {
		key = strings.ToLower(key)
		if _, ok := known[key]; !ok {
			return ""
		}
		return key
	}), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load environment")
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.WithStack(err)
	}
	cfg.Hostname = hostname

	if os.Getenv(environmentENV) == "development" {
		loadDevelopmentConfig(cfg)
	}

	if err := checkRequired(cfg); err != nil {
		return nil, err
	}

	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	return cfg, nil
}

// NewForTest returns a fully populated config that never touches the
// filesystem or the network.
func NewForTest() *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg)
	cfg.APIBaseURL = "http://127.0.0.1:0"
	cfg.CacheDir = os.TempDir()
	cfg.DatabaseFilePath = ":memory:"
	cfg.DatabaseConnectRetryCount = 1
	cfg.DatabaseConnectRetryDelay = time.Millisecond
	cfg.DispatchResetDelay = 10 * time.Millisecond
	cfg.Hostname = "test"
	cfg.JWTSecret = "test-secret"
	cfg.PrintResetDelay = 10 * time.Millisecond
	cfg.ServerHost = "127.0.0.1"
	cfg.WorkerPollInterval = 10 * time.Millisecond
	return cfg
}

func knownKeys() map[string]struct{} {
	keys := map[string]struct{}{}
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("koanf")
		if tag == "" || tag == "-" {
			continue
		}
		keys[tag] = struct{}{}
	}
	return keys
}

func checkRequired(cfg *Config) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	missing := []string{}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Tag.Get("required") != "true" {
			continue
		}
		if !v.Field(i).IsZero() {
			continue
		}
		key := field.Tag.Get("koanf")
		missing = append(missing, strings.ToUpper(key)+" (env) / "+key+" (file)")
	}
	if len(missing) > 0 {
		return errors.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}
