package config

import "os"

// envPrefix namespaces every variable so the client cannot collide with the
// host application's environment.
const envPrefix = "CLASSDESK_"

const (
	appNameVar        = "APP_NAME"
	folderEnvVar      = "FOLDER"
	keyringServiceVar = "KEYRING_SERVICE"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "ClassDesk")
}

// GetDataFolder is where the sealed file store lives on hosts without an OS
// keychain.
func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

func (EnvVars) GetKeyringService() string {
	return GetEnv(keyringServiceVar, "com.classdesk.client")
}

func (EnvVars) GetEnv() string {
	return GetEnv("ENV", "DEV")
}

// GetEnv reads the CLASSDESK_-prefixed variable, falling back to the default
// when unset or empty.
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envPrefix + envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
