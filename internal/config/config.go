package config

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

const configPathEnv = "OAMON_CONFIG"

// Config holds everything the monitor needs for one deployment: where the
// WebVPN and OA live, which selectors to look for, and the mode switches.
type Config struct {
	WebVPN     WebVPNConfig  `yaml:"webvpn"`
	OA         OAConfig      `yaml:"oa"`
	AI         AIConfig      `yaml:"ai"`
	Store      StoreConfig   `yaml:"store"`
	Timeouts   TimeoutConfig `yaml:"timeouts"`
	RequireOTP bool          `yaml:"requireOtp"`
	MockMode   bool          `yaml:"mockMode"`
	DateFormat string        `yaml:"dateFormat"`
	LogLevel   string        `yaml:"logLevel"`
}

// WebVPNConfig covers the gateway login page: URL, credentials, and the
// selectors for the form plus the OTP dialog.
type WebVPNConfig struct {
	LoginURL string `yaml:"loginUrl"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	UsernameField string `yaml:"usernameField"`
	PasswordField string `yaml:"passwordField"`
	Submit        string `yaml:"submit"`
	OTPDialog     string `yaml:"otpDialog"`
	OTPInput      string `yaml:"otpInput"`
	OTPSubmit     string `yaml:"otpSubmit"`
}

// OAConfig covers the notice system behind the gateway.
type OAConfig struct {
	EntryURL      string `yaml:"entryUrl"`
	ReadySelector string `yaml:"readySelector"`
	ListRow       string `yaml:"listRow"`
	Title         string `yaml:"title"`
	Department    string `yaml:"department"`
	Date          string `yaml:"date"`
	Link          string `yaml:"link"`
	DetailContent string `yaml:"detailContent"`
}

// AIConfig defines the summarization endpoint (OpenAI-compatible chat API).
type AIConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	Model        string  `yaml:"model"`
	APIKey       string  `yaml:"apiKey"`
	SystemPrompt string  `yaml:"systemPrompt"`
	Temperature  float64 `yaml:"temperature"`
}

// StoreConfig locates the notice database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// TimeoutConfig bounds every wait in the pipeline. The OTP entry window is
// the only one measured in minutes; the user has to read the code off their
// device and type it in.
type TimeoutConfig struct {
	LoginForm  time.Duration `yaml:"loginForm"`
	OTPDialog  time.Duration `yaml:"otpDialog"`
	OTPEntry   time.Duration `yaml:"otpEntry"`
	Navigation time.Duration `yaml:"navigation"`
	ListRows   time.Duration `yaml:"listRows"`
	Extraction time.Duration `yaml:"extraction"`
}

// Load reads YAML configuration (if OAMON_CONFIG points at one) and applies
// environment overrides on top of built-in defaults.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn("config file unreadable, using defaults", "path", path, "error", err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Warn("config file malformed, using defaults", "path", path, "error", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg
}

func defaultConfig() Config {
	return Config{
		RequireOTP: true,
		DateFormat: "2006-01-02",
		LogLevel:   "info",
		AI: AIConfig{
			Endpoint:     "http://localhost:8080/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You summarize internal university notices in two sentences, keeping dates and deadlines.",
			Temperature:  0.3,
		},
		Store: StoreConfig{Path: "oamon.db"},
		Timeouts: TimeoutConfig{
			LoginForm:  15 * time.Second,
			OTPDialog:  30 * time.Second,
			OTPEntry:   5 * time.Minute,
			Navigation: 30 * time.Second,
			ListRows:   20 * time.Second,
			Extraction: 20 * time.Second,
		},
	}
}

func (c *Config) applyEnvOverrides() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&c.WebVPN.LoginURL, "WEBVPN_LOGIN_URL")
	setString(&c.WebVPN.Username, "WEBVPN_USERNAME")
	setString(&c.WebVPN.Password, "WEBVPN_PASSWORD")
	setString(&c.WebVPN.UsernameField, "WEBVPN_USERNAME_SELECTOR")
	setString(&c.WebVPN.PasswordField, "WEBVPN_PASSWORD_SELECTOR")
	setString(&c.WebVPN.Submit, "WEBVPN_SUBMIT_SELECTOR")
	setString(&c.WebVPN.OTPDialog, "WEBVPN_OTP_DIALOG_SELECTOR")
	setString(&c.WebVPN.OTPInput, "WEBVPN_OTP_INPUT_SELECTOR")
	setString(&c.WebVPN.OTPSubmit, "WEBVPN_OTP_SUBMIT_SELECTOR")

	setString(&c.OA.EntryURL, "OA_ENTRY_URL")
	setString(&c.OA.ReadySelector, "OA_READY_SELECTOR")
	setString(&c.OA.ListRow, "OA_LIST_ROW_SELECTOR")
	setString(&c.OA.Title, "OA_TITLE_SELECTOR")
	setString(&c.OA.Department, "OA_DEPARTMENT_SELECTOR")
	setString(&c.OA.Date, "OA_DATE_SELECTOR")
	setString(&c.OA.Link, "OA_LINK_SELECTOR")
	setString(&c.OA.DetailContent, "OA_DETAIL_CONTENT_SELECTOR")

	setString(&c.AI.Endpoint, "AI_API_ENDPOINT")
	setString(&c.AI.Model, "AI_MODEL")
	setString(&c.AI.APIKey, "AI_API_KEY")
	setString(&c.Store.Path, "OAMON_DB")
	setString(&c.DateFormat, "OA_DATE_FORMAT")
	setString(&c.LogLevel, "OAMON_LOG_LEVEL")

	if v := os.Getenv("REQUIRE_OTP"); v != "" {
		c.RequireOTP = v == "1"
	}
	if v := os.Getenv("MOCK_MODE"); v != "" {
		c.MockMode = v == "1"
	}
}

func (c *Config) applyDefaults() {
	def := defaultConfig()
	if c.DateFormat == "" {
		c.DateFormat = def.DateFormat
	}
	if c.Store.Path == "" {
		c.Store.Path = def.Store.Path
	}
	if c.Timeouts.LoginForm <= 0 {
		c.Timeouts.LoginForm = def.Timeouts.LoginForm
	}
	if c.Timeouts.OTPDialog <= 0 {
		c.Timeouts.OTPDialog = def.Timeouts.OTPDialog
	}
	if c.Timeouts.OTPEntry <= 0 {
		c.Timeouts.OTPEntry = def.Timeouts.OTPEntry
	}
	if c.Timeouts.Navigation <= 0 {
		c.Timeouts.Navigation = def.Timeouts.Navigation
	}
	if c.Timeouts.ListRows <= 0 {
		c.Timeouts.ListRows = def.Timeouts.ListRows
	}
	if c.Timeouts.Extraction <= 0 {
		c.Timeouts.Extraction = def.Timeouts.Extraction
	}
}

// Validate checks everything a live run needs before any navigation happens.
// A missing selector fails here, by name, instead of as a timeout deep inside
// a stage. Mock mode skips the selector checks entirely.
func (c Config) Validate() error {
	if c.MockMode {
		return nil
	}

	required := []struct {
		name  string
		value string
	}{
		{"webvpn.loginUrl", c.WebVPN.LoginURL},
		{"webvpn.username", c.WebVPN.Username},
		{"webvpn.password", c.WebVPN.Password},
		{"webvpn.usernameField", c.WebVPN.UsernameField},
		{"webvpn.passwordField", c.WebVPN.PasswordField},
		{"webvpn.submit", c.WebVPN.Submit},
		{"oa.entryUrl", c.OA.EntryURL},
		{"oa.readySelector", c.OA.ReadySelector},
		{"oa.listRow", c.OA.ListRow},
		{"oa.title", c.OA.Title},
		{"oa.department", c.OA.Department},
		{"oa.date", c.OA.Date},
		{"oa.link", c.OA.Link},
		{"oa.detailContent", c.OA.DetailContent},
	}
	if c.RequireOTP {
		required = append(required,
			struct{ name, value string }{"webvpn.otpDialog", c.WebVPN.OTPDialog},
			struct{ name, value string }{"webvpn.otpInput", c.WebVPN.OTPInput},
			struct{ name, value string }{"webvpn.otpSubmit", c.WebVPN.OTPSubmit},
		)
	}

	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("config: %s is required", r.name)
		}
	}
	return nil
}
