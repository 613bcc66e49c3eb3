package config

// loadDevelopmentConfig fills in local defaults so that `ENVIRONMENT=development`
// works without a config file.
func loadDevelopmentConfig(cfg *Config) {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:5000"
	}
	if cfg.DatabaseFilePath == "" {
		cfg.DatabaseFilePath = "./tmp/console.sqlite"
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "development-secret"
	}
	cfg.CacheDir = "./tmp/cache"
	cfg.DatabaseDebug = true
	cfg.FrontendURL = "http://localhost:3000"
	cfg.ServerHost = "127.0.0.1"
}
