package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"zac/internal/templatefmt"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	defaultZabbixURL       = "http://localhost:10080"
	defaultZabbixUser      = "Admin"
	defaultZabbixPassword  = "zabbix"
	defaultZabbixTimeout   = 30
	defaultAlertaURL       = "http://alerta/api"
	defaultProfile         = "Production"
	defaultMediaName       = "Alerta"
	defaultExecPath        = "zabbix-alerta"
	defaultMaxAttempts     = 5
	defaultAttemptInterval = "5s"
	defaultUserAlias       = "Admin"
	defaultSeverityMask    = 63
	defaultMediaPeriod     = "1-7,00:00-24:00"
	defaultActionName      = "Forward to Alerta"
	defaultEscPeriodSec    = 120
	defaultHostGroup       = "Linux servers"
	defaultServerHost      = "Zabbix server"
	defaultProbeKey        = "test.timestamp"
	defaultProbeTimeoutSec = 120
	defaultProbeWaitSec    = 5
	defaultProbeIntervalMS = 500
	defaultSenderAddress   = "127.0.0.1:10051"
	defaultSenderTimeout   = 10
	defaultReportTimeout   = 10
	defaultNATSURL         = "nats://127.0.0.1:4222"
	defaultNATSSubject     = "zac.reports"
	defaultNATSStream      = "ZAC_REPORTS"
	defaultTelegramAPIBase = "https://api.telegram.org"
	defaultEnvFile         = ".env"

	minEscPeriodSec  = 60
	maxMediaAttempts = 10
	maxSeverityMask  = 63
)

// Environment variables overriding secrets and endpoints from TOML.
const (
	EnvZabbixURL      = "ZAC_ZABBIX_URL"
	EnvZabbixUser     = "ZAC_ZABBIX_USER"
	EnvZabbixPassword = "ZAC_ZABBIX_PASSWORD"
	EnvAlertaURL      = "ZAC_ALERTA_URL"
	EnvAlertaAPIKey   = "ZAC_ALERTA_API_KEY"
	EnvAlertaProfile  = "ZAC_ALERTA_PROFILE"
)

// Config holds one provisioning run settings.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Zabbix ZabbixConfig `toml:"zabbix"`
	Alerta AlertaConfig `toml:"alerta"`
	Media  MediaConfig  `toml:"media"`
	User   UserConfig   `toml:"user"`
	Action ActionConfig `toml:"action"`
	Seed   SeedConfig   `toml:"seed"`
	Probe  ProbeConfig  `toml:"probe"`
	Sender SenderConfig `toml:"sender"`
	Report ReportConfig `toml:"report"`
	Log    LogConfig    `toml:"log"`
}

// ZabbixConfig points to the monitoring server administrative API.
// Params: server URL, login credentials, and HTTP timeout.
// Returns: API connection settings.
type ZabbixConfig struct {
	URL        string `toml:"url"`
	User       string `toml:"user"`
	Password   string `toml:"password"`
	TimeoutSec int    `toml:"timeout_sec"`
}

// AlertaConfig describes the downstream alert-management endpoint.
// Params: API URL, optional API key, and environment profile.
// Returns: destination settings for the user media binding and message template.
type AlertaConfig struct {
	URL     string `toml:"url"`
	APIKey  string `toml:"api_key"`
	Profile string `toml:"profile"`
}

// MediaConfig describes the script media type forwarding alerts.
type MediaConfig struct {
	Name            string `toml:"name"`
	ExecPath        string `toml:"exec_path"`
	MaxAttempts     int    `toml:"max_attempts"`
	AttemptInterval string `toml:"attempt_interval"`
}

// UserConfig describes which user receives the media binding.
type UserConfig struct {
	Alias    string `toml:"alias"`
	Severity int    `toml:"severity"`
	Period   string `toml:"period"`
}

// ActionConfig describes the forwarding action rule.
// Params: rule name, escalation, console link and message options.
// Returns: action rule settings.
type ActionConfig struct {
	Name               string `toml:"name"`
	EscPeriodSec       int    `toml:"esc_period_sec"`
	UseConsoleLink     bool   `toml:"use_console_link"`
	ConsoleURL         string `toml:"console_url"`
	UseZabbixSeverity  bool   `toml:"use_zabbix_severity"`
	PauseInMaintenance bool   `toml:"maintenance_pause"`
	SkipExisting       bool   `toml:"skip_existing"`
}

// SeedConfig controls demo topology seeding.
type SeedConfig struct {
	Enabled    bool       `toml:"enabled"`
	HostGroup  string     `toml:"host_group"`
	ServerHost string     `toml:"server_host"`
	Host       []HostSpec `toml:"host"`
}

// HostSpec is one demo host to create.
// Params: visible host name, DNS name of its agent, and linked template name.
// Returns: seeding input entry.
type HostSpec struct {
	Name     string `toml:"name"`
	DNS      string `toml:"dns"`
	Template string `toml:"template"`
}

// ProbeConfig controls the end-to-end integration probe.
// Params: target host, trapper key, and wait strategy.
// Returns: probe settings.
type ProbeConfig struct {
	Enabled        bool   `toml:"enabled"`
	Host           string `toml:"host"`
	Key            string `toml:"key"`
	Poll           bool   `toml:"poll"`
	TimeoutSec     int    `toml:"timeout_sec"`
	WaitSec        int    `toml:"wait_sec"`
	PollIntervalMS int    `toml:"poll_interval_ms"`
}

// SenderConfig points to the trapper port of the monitoring server.
type SenderConfig struct {
	Address    string `toml:"address"`
	TimeoutSec int    `toml:"timeout_sec"`
}

// ReportConfig lists optional run report sinks.
type ReportConfig struct {
	Template string         `toml:"template"`
	HTTP     HTTPReport     `toml:"http"`
	Telegram TelegramReport `toml:"telegram"`
	NATS     NATSReport     `toml:"nats"`
}

// HTTPReport posts the JSON run report to a webhook.
type HTTPReport struct {
	Enabled    bool              `toml:"enabled"`
	URL        string            `toml:"url"`
	Method     string            `toml:"method"`
	TimeoutSec int               `toml:"timeout_sec"`
	Headers    map[string]string `toml:"headers"`
}

// TelegramReport sends the rendered run report to a chat.
type TelegramReport struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
	APIBase  string `toml:"api_base"`
}

// NATSReport publishes the JSON run report into a JetStream stream.
type NATSReport struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
	Stream  string `toml:"stream"`
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, path, and rotation limits.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled    bool   `toml:"enabled"`
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// ConfigSource describes file or directory config source plus optional env file.
// Params: at most one of file path or directory path.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File    string
	Dir     string
	EnvFile string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file, directory, and env file arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath, envFile string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)
	envFile = strings.TrimSpace(envFile)

	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}
	return ConfigSource{File: filePath, Dir: dirPath, EnvFile: envFile}, nil
}

// Default returns settings equal to the built-in constants of the provisioning script.
// Params: none.
// Returns: config usable without any file.
func Default() Config {
	return Config{
		Zabbix: ZabbixConfig{
			URL:        defaultZabbixURL,
			User:       defaultZabbixUser,
			Password:   defaultZabbixPassword,
			TimeoutSec: defaultZabbixTimeout,
		},
		Alerta: AlertaConfig{
			URL:     defaultAlertaURL,
			Profile: defaultProfile,
		},
		Media: MediaConfig{
			Name:            defaultMediaName,
			ExecPath:        defaultExecPath,
			MaxAttempts:     defaultMaxAttempts,
			AttemptInterval: defaultAttemptInterval,
		},
		User: UserConfig{
			Alias:    defaultUserAlias,
			Severity: defaultSeverityMask,
			Period:   defaultMediaPeriod,
		},
		Action: ActionConfig{
			Name:         defaultActionName,
			EscPeriodSec: defaultEscPeriodSec,
		},
		Seed: SeedConfig{
			Enabled:    true,
			HostGroup:  defaultHostGroup,
			ServerHost: defaultServerHost,
		},
		Probe: ProbeConfig{
			Host:           defaultServerHost,
			Key:            defaultProbeKey,
			Poll:           true,
			TimeoutSec:     defaultProbeTimeoutSec,
			WaitSec:        defaultProbeWaitSec,
			PollIntervalMS: defaultProbeIntervalMS,
		},
		Sender: SenderConfig{
			Address:    defaultSenderAddress,
			TimeoutSec: defaultSenderTimeout,
		},
		Log: LogConfig{
			Console: LogSinkConfig{Enabled: true, Level: "info", Format: "line"},
			File:    LogSinkConfig{Level: "info", Format: "json"},
		},
	}
}

// DefaultHosts returns the demo topology of the dockerized test setup.
// Params: none.
// Returns: fresh host spec slice.
func DefaultHosts() []HostSpec {
	return []HostSpec{
		{Name: "Zabbix web", DNS: "zabbix-web", Template: "Template App Zabbix Server"},
		{Name: "Zabbix agent", DNS: "zabbix-agent", Template: "Template App Zabbix Agent"},
		{Name: "MySQL server", DNS: "mysql-server", Template: "Template App MySQL"},
		{Name: "Alerta server", DNS: "alerta", Template: "Template App HTTP Service"},
		{Name: "MongoDB server", DNS: "db", Template: "Template ICMP Ping"},
	}
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file, directory, or built-in defaults, plus env file.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	cfg := Default()
	var err error
	switch {
	case src.File != "":
		err = loadFile(src.File, &cfg)
	case src.Dir != "":
		err = loadDir(src.Dir, &cfg)
	}
	if err != nil {
		return Config{}, err
	}
	if err := loadEnvFile(src.EnvFile); err != nil {
		return Config{}, err
	}
	ApplyEnv(&cfg, os.LookupEnv)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays endpoint and secret values from environment variables.
// Params: cfg pointer and lookup function (os.LookupEnv in production).
// Returns: overrides applied in place.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	overrides := []struct {
		key string
		dst *string
	}{
		{EnvZabbixURL, &cfg.Zabbix.URL},
		{EnvZabbixUser, &cfg.Zabbix.User},
		{EnvZabbixPassword, &cfg.Zabbix.Password},
		{EnvAlertaURL, &cfg.Alerta.URL},
		{EnvAlertaAPIKey, &cfg.Alerta.APIKey},
		{EnvAlertaProfile, &cfg.Alerta.Profile},
	}
	for _, override := range overrides {
		if value, ok := lookup(override.key); ok {
			*override.dst = value
		}
	}
}

// loadEnvFile loads KEY=VALUE pairs into process environment.
// Params: explicit env file path; empty means optional ".env" in working directory.
// Returns: read error for explicit files, nil when the default file is absent.
func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

// loadFile decodes one TOML file on top of cfg.
// Params: file path and destination config.
// Returns: read or decode error.
func loadFile(path string, cfg *Config) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %q: %w", path, err)
	}
	if err := decodeStrict(body, cfg); err != nil {
		return fmt.Errorf("decode config %q: %w", path, err)
	}
	return nil
}

// loadDir decodes all *.toml fragments in lexical order on top of cfg.
// Params: directory path and destination config.
// Returns: read/decode error or error when no fragments exist.
func loadDir(dir string, cfg *Config) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read config dir %q: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return fmt.Errorf("config dir %q has no .toml files", dir)
	}
	sort.Strings(files)
	for _, path := range files {
		if err := loadFile(path, cfg); err != nil {
			return err
		}
	}
	return nil
}

// decodeStrict decodes TOML and rejects unknown keys.
// Params: raw TOML body and destination pointer.
// Returns: decode error with strict-mode details.
func decodeStrict(body []byte, cfg *Config) error {
	decoder := toml.NewDecoder(strings.NewReader(string(body)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		var strictErr *toml.StrictMissingError
		if errors.As(err, &strictErr) {
			return fmt.Errorf("unknown keys: %s", strictErr.String())
		}
		return err
	}
	return nil
}

// applyDefaults fills fields that were explicitly blanked in TOML.
// Seed hosts are defaulted here because TOML array tables append to a prefilled slice.
// Params: cfg pointer to decoded snapshot.
// Returns: defaults applied in place.
func applyDefaults(cfg *Config) {
	if cfg.Zabbix.TimeoutSec <= 0 {
		cfg.Zabbix.TimeoutSec = defaultZabbixTimeout
	}
	if strings.TrimSpace(cfg.Alerta.Profile) == "" {
		cfg.Alerta.Profile = defaultProfile
	}
	if strings.TrimSpace(cfg.Media.AttemptInterval) == "" {
		cfg.Media.AttemptInterval = defaultAttemptInterval
	}
	if strings.TrimSpace(cfg.User.Period) == "" {
		cfg.User.Period = defaultMediaPeriod
	}
	if len(cfg.Seed.Host) == 0 {
		cfg.Seed.Host = DefaultHosts()
	}
	if strings.TrimSpace(cfg.Probe.Key) == "" {
		cfg.Probe.Key = defaultProbeKey
	}
	if cfg.Probe.TimeoutSec <= 0 {
		cfg.Probe.TimeoutSec = defaultProbeTimeoutSec
	}
	if cfg.Probe.WaitSec <= 0 {
		cfg.Probe.WaitSec = defaultProbeWaitSec
	}
	if cfg.Probe.PollIntervalMS <= 0 {
		cfg.Probe.PollIntervalMS = defaultProbeIntervalMS
	}
	if strings.TrimSpace(cfg.Sender.Address) == "" {
		cfg.Sender.Address = defaultSenderAddress
	}
	if cfg.Sender.TimeoutSec <= 0 {
		cfg.Sender.TimeoutSec = defaultSenderTimeout
	}
	if cfg.Report.HTTP.TimeoutSec <= 0 {
		cfg.Report.HTTP.TimeoutSec = defaultReportTimeout
	}
	if strings.TrimSpace(cfg.Report.Telegram.APIBase) == "" {
		cfg.Report.Telegram.APIBase = defaultTelegramAPIBase
	}
	if strings.TrimSpace(cfg.Report.NATS.URL) == "" {
		cfg.Report.NATS.URL = defaultNATSURL
	}
	if strings.TrimSpace(cfg.Report.NATS.Subject) == "" {
		cfg.Report.NATS.Subject = defaultNATSSubject
	}
	if strings.TrimSpace(cfg.Report.NATS.Stream) == "" {
		cfg.Report.NATS.Stream = defaultNATSStream
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
}

// validateConfig checks cross-field constraints of one snapshot.
// Params: cfg after defaults.
// Returns: first validation error.
func validateConfig(cfg Config) error {
	if err := validateURL("zabbix.url", cfg.Zabbix.URL); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Zabbix.User) == "" {
		return errors.New("zabbix.user is required")
	}
	if err := validateURL("alerta.url", cfg.Alerta.URL); err != nil {
		return err
	}
	if strings.Contains(cfg.Alerta.URL, ";") || strings.Contains(cfg.Alerta.APIKey, ";") {
		return errors.New("alerta.url and alerta.api_key must not contain ';'")
	}

	if strings.TrimSpace(cfg.Media.Name) == "" {
		return errors.New("media.name is required")
	}
	if strings.TrimSpace(cfg.Media.ExecPath) == "" {
		return errors.New("media.exec_path is required")
	}
	if cfg.Media.MaxAttempts < 1 || cfg.Media.MaxAttempts > maxMediaAttempts {
		return fmt.Errorf("media.max_attempts must be in [1,%d], got %d", maxMediaAttempts, cfg.Media.MaxAttempts)
	}

	if strings.TrimSpace(cfg.User.Alias) == "" {
		return errors.New("user.alias is required")
	}
	if cfg.User.Severity < 0 || cfg.User.Severity > maxSeverityMask {
		return fmt.Errorf("user.severity must be in [0,%d], got %d", maxSeverityMask, cfg.User.Severity)
	}

	if strings.TrimSpace(cfg.Action.Name) == "" {
		return errors.New("action.name is required")
	}
	if cfg.Action.EscPeriodSec < minEscPeriodSec {
		return fmt.Errorf("action.esc_period_sec must be >= %d, got %d", minEscPeriodSec, cfg.Action.EscPeriodSec)
	}
	if cfg.Action.UseConsoleLink {
		if err := validateURL("action.console_url", cfg.Action.ConsoleURL); err != nil {
			return err
		}
	}

	if cfg.Seed.Enabled {
		if strings.TrimSpace(cfg.Seed.HostGroup) == "" {
			return errors.New("seed.host_group is required when seeding is enabled")
		}
		seen := make(map[string]struct{}, len(cfg.Seed.Host))
		for idx, host := range cfg.Seed.Host {
			if strings.TrimSpace(host.Name) == "" || strings.TrimSpace(host.DNS) == "" || strings.TrimSpace(host.Template) == "" {
				return fmt.Errorf("seed.host[%d]: name, dns and template are required", idx)
			}
			if _, ok := seen[host.Name]; ok {
				return fmt.Errorf("seed.host[%d]: duplicate host name %q", idx, host.Name)
			}
			seen[host.Name] = struct{}{}
		}
	}

	if cfg.Probe.Enabled && strings.TrimSpace(cfg.Probe.Host) == "" {
		return errors.New("probe.host is required when probe is enabled")
	}

	if err := validateReport(cfg.Report); err != nil {
		return err
	}
	return validateLog(cfg.Log)
}

// validateReport checks required fields of enabled report sinks.
// Params: report section.
// Returns: first validation error.
func validateReport(cfg ReportConfig) error {
	if strings.TrimSpace(cfg.Template) != "" {
		if _, err := templatefmt.ParseReportTemplate("report.template", cfg.Template); err != nil {
			return fmt.Errorf("report.template: %w", err)
		}
	}
	if cfg.HTTP.Enabled {
		if err := validateURL("report.http.url", cfg.HTTP.URL); err != nil {
			return err
		}
	}
	if cfg.Telegram.Enabled {
		if strings.TrimSpace(cfg.Telegram.BotToken) == "" || strings.TrimSpace(cfg.Telegram.ChatID) == "" {
			return errors.New("report.telegram requires bot_token and chat_id")
		}
	}
	if cfg.NATS.Enabled && !strings.HasPrefix(strings.TrimSpace(cfg.NATS.URL), "nats://") && !strings.HasPrefix(strings.TrimSpace(cfg.NATS.URL), "tls://") {
		return fmt.Errorf("report.nats.url must use nats:// or tls://, got %q", cfg.NATS.URL)
	}
	return nil
}

// validateLog checks sink formats and file path.
// Params: log section.
// Returns: first validation error.
func validateLog(cfg LogConfig) error {
	for name, sink := range map[string]LogSinkConfig{"console": cfg.Console, "file": cfg.File} {
		if !sink.Enabled {
			continue
		}
		if sink.Format != "line" && sink.Format != "json" {
			return fmt.Errorf("log.%s.format must be line or json, got %q", name, sink.Format)
		}
		switch strings.ToLower(strings.TrimSpace(sink.Level)) {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("log.%s.level %q is not supported", name, sink.Level)
		}
	}
	if cfg.File.Enabled && strings.TrimSpace(cfg.File.Path) == "" {
		return errors.New("log.file.path is required when file sink is enabled")
	}
	return nil
}

// validateURL checks that value is an absolute http(s) URL.
// Params: field name for the message and raw value.
// Returns: validation error.
func validateURL(field, raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("%s is required", field)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", field, raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s has no host", field)
	}
	return nil
}
