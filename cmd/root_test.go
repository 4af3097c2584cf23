package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/bizmint-cli/internal/config"
)

func TestInitializeConfigAppliesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfgFile = ""
	require.NoError(t, initializeConfig())

	var cfg config.Config
	require.NoError(t, viper.Unmarshal(&cfg))
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "https://business.gemini.google/", cfg.Browser.WorkspaceURL)
	assert.Equal(t, 3, cfg.Signup.MaxCrashRetries)
}

func TestInitializeConfigEnvOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("BIZMINT_MAIL_API_BASE", "https://relay.example.test")
	cfgFile = ""
	require.NoError(t, initializeConfig())

	var cfg config.Config
	require.NoError(t, viper.Unmarshal(&cfg))
	assert.Equal(t, "https://relay.example.test", cfg.Mail.APIBase)
}

func TestRunCommandRegistered(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"run"})
	require.NoError(t, err)
	assert.Equal(t, "run", cmd.Name())
	assert.NotNil(t, cmd.Flags().Lookup("count"))
	assert.NotNil(t, cmd.Flags().Lookup("domain"))
}
