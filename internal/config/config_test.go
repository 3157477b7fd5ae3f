package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullLiveConfig() Config {
	cfg := defaultConfig()
	cfg.WebVPN = WebVPNConfig{
		LoginURL:      "https://webvpn.example.edu/login",
		Username:      "user",
		Password:      "pass",
		UsernameField: "#username",
		PasswordField: "#password",
		Submit:        "#login-btn",
		OTPDialog:     ".otp-dialog",
		OTPInput:      "#otp",
		OTPSubmit:     "#otp-btn",
	}
	cfg.OA = OAConfig{
		EntryURL:      "https://webvpn.example.edu/oa/list",
		ReadySelector: ".oa-main",
		ListRow:       ".notice-row",
		Title:         ".title",
		Department:    ".dept",
		Date:          ".date",
		Link:          "a",
		DetailContent: ".content",
	}
	return cfg
}

func TestValidateFullConfig(t *testing.T) {
	cfg := fullLiveConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateNamesMissingSelector(t *testing.T) {
	cfg := fullLiveConfig()
	cfg.OA.ListRow = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oa.listRow")
}

func TestValidateOTPSelectorsOnlyWhenRequired(t *testing.T) {
	cfg := fullLiveConfig()
	cfg.WebVPN.OTPDialog = ""

	require.Error(t, cfg.Validate())

	cfg.RequireOTP = false
	assert.NoError(t, cfg.Validate())
}

func TestValidateMockModeSkipsSelectors(t *testing.T) {
	cfg := Config{MockMode: true}
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WEBVPN_LOGIN_URL", "https://vpn.test/login")
	t.Setenv("OA_LIST_ROW_SELECTOR", "tr.notice")
	t.Setenv("REQUIRE_OTP", "0")
	t.Setenv("MOCK_MODE", "1")

	cfg := Load()

	assert.Equal(t, "https://vpn.test/login", cfg.WebVPN.LoginURL)
	assert.Equal(t, "tr.notice", cfg.OA.ListRow)
	assert.False(t, cfg.RequireOTP)
	assert.True(t, cfg.MockMode)
}

func TestLoadYAMLFileWithEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oamon.yaml")
	raw := []byte(`
webvpn:
  loginUrl: https://file.test/login
  usernameField: "#u"
oa:
  entryUrl: https://file.test/oa
timeouts:
  otpEntry: 2m
`)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	t.Setenv("OAMON_CONFIG", path)
	t.Setenv("WEBVPN_LOGIN_URL", "https://env.test/login")

	cfg := Load()

	// Env wins over file; file wins over defaults.
	assert.Equal(t, "https://env.test/login", cfg.WebVPN.LoginURL)
	assert.Equal(t, "#u", cfg.WebVPN.UsernameField)
	assert.Equal(t, "https://file.test/oa", cfg.OA.EntryURL)
	assert.Equal(t, 2*time.Minute, cfg.Timeouts.OTPEntry)
	// Untouched timeouts keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Timeouts.OTPDialog)
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestLoadWarnsOnMalformedConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oamon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("webvpn: [this is not: valid yaml"), 0o644))
	t.Setenv("OAMON_CONFIG", path)

	buf := captureLog(t)
	cfg := Load()

	assert.Contains(t, buf.String(), "malformed")
	assert.Contains(t, buf.String(), path)
	// The broken file is dropped wholesale; defaults still apply.
	assert.True(t, cfg.RequireOTP)
	assert.Equal(t, "2006-01-02", cfg.DateFormat)
}

func TestLoadWarnsOnUnreadableConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	t.Setenv("OAMON_CONFIG", path)

	buf := captureLog(t)
	Load()

	assert.Contains(t, buf.String(), "unreadable")
	assert.Contains(t, buf.String(), path)
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.True(t, cfg.RequireOTP)
	assert.False(t, cfg.MockMode)
	assert.Equal(t, "2006-01-02", cfg.DateFormat)
	assert.Equal(t, 5*time.Minute, cfg.Timeouts.OTPEntry)
}
