package config

type Backend struct{}

var _ BackendConfig = Backend{}

// GetAPIBaseURL returns the session API root, without a trailing slash.
func (Backend) GetAPIBaseURL() string {
	return GetEnv("API_BASE_URL", "http://localhost:4000/api")
}

// GetAPITimeout is a time.ParseDuration string for per-request timeouts.
func (Backend) GetAPITimeout() string {
	return GetEnv("API_TIMEOUT", "15s")
}
