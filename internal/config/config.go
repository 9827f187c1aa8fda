package config

type Config interface {
	EnvConfig
	IdentityConfig
	BackendConfig
}

type EnvConfig interface {
	GetAppName() string
	GetDataFolder() string
	GetKeyringService() string
	GetEnv() string
}

type IdentityConfig interface {
	GetIssuerURL() string
	GetClientID() string
	GetClientSecret() string
	GetCallbackPort() int
}

type BackendConfig interface {
	GetAPIBaseURL() string
	GetAPITimeout() string
}

type mainConfig struct {
	EnvVars
	Identity
	Backend
}

func New() Config {
	return mainConfig{}
}
