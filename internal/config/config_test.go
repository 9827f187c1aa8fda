package config_test

import (
	"testing"

	"github.com/classdesk/go-session-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := config.New()

	require.Equal(t, "ClassDesk", c.GetAppName())
	require.Equal(t, "./data", c.GetDataFolder())
	require.Equal(t, "com.classdesk.client", c.GetKeyringService())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, "https://id.classdesk.app", c.GetIssuerURL())
	require.Equal(t, "http://localhost:4000/api", c.GetAPIBaseURL())
	require.Equal(t, "15s", c.GetAPITimeout())
	require.Equal(t, 0, c.GetCallbackPort())
}

func TestPrefixedVariablesOverrideDefaults(t *testing.T) {
	t.Setenv("CLASSDESK_APP_NAME", "ClassDesk QA")
	t.Setenv("CLASSDESK_API_BASE_URL", "https://qa.classdesk.app/api")
	t.Setenv("CLASSDESK_IDENTITY_ISSUER_URL", "https://id.qa.classdesk.app")
	t.Setenv("CLASSDESK_IDENTITY_CALLBACK_PORT", "43117")
	t.Setenv("CLASSDESK_ENV", "QA")

	c := config.New()
	require.Equal(t, "ClassDesk QA", c.GetAppName())
	require.Equal(t, "https://qa.classdesk.app/api", c.GetAPIBaseURL())
	require.Equal(t, "https://id.qa.classdesk.app", c.GetIssuerURL())
	require.Equal(t, 43117, c.GetCallbackPort())
	require.Equal(t, "QA", c.GetEnv())
}

func TestUnprefixedVariablesAreIgnored(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://wrong.example.com")

	require.Equal(t, "http://localhost:4000/api", config.New().GetAPIBaseURL())
}

func TestMalformedCallbackPortFallsBackToEphemeral(t *testing.T) {
	t.Setenv("CLASSDESK_IDENTITY_CALLBACK_PORT", "not-a-port")

	require.Equal(t, 0, config.New().GetCallbackPort())
}
