package config

import "strconv"

type Identity struct{}

var _ IdentityConfig = Identity{}

// GetIssuerURL returns the OIDC issuer the identity provider publishes
// (e.g. "https://id.classdesk.app").
func (Identity) GetIssuerURL() string {
	return GetEnv("IDENTITY_ISSUER_URL", "https://id.classdesk.app")
}

func (Identity) GetClientID() string {
	return GetEnv("IDENTITY_CLIENT_ID", "")
}

func (Identity) GetClientSecret() string {
	return GetEnv("IDENTITY_CLIENT_SECRET", "")
}

// GetCallbackPort returns the loopback port for federated redirects; 0 means
// pick an ephemeral port.
func (Identity) GetCallbackPort() int {
	port, err := strconv.Atoi(GetEnv("IDENTITY_CALLBACK_PORT", "0"))
	if err != nil {
		return 0
	}
	return port
}
