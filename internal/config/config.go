// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	TLS      TLSConfig
	Provider ProviderConfig
	Token    TokenConfig
	Roles    RolesConfig
	Wave     WaveConfig
	SMTP     SMTPConfig
}

type TLSConfig struct {
	Mode     string // auto, acme, selfsigned, manual, off
	CertDir  string // Directory for auto-generated certificates
	Email    string // ACME email for Let's Encrypt
	CertFile string // Path to certificate file (manual mode)
	KeyFile  string // Path to private key file (manual mode)
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

// ProviderConfig describes the identity provider's CAS endpoints.
type ProviderConfig struct { //nolint:govet // fieldalignment not critical for config structs
	LoginURL    string // Provider login page the user is redirected to
	ValidateURL string // Server-to-server ticket validation endpoint
	Timeout     int    // Validation request timeout in seconds
}

// TokenConfig controls the single-use state tokens that bind a pending
// verification attempt to a subject.
type TokenConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Secret     string // Keyed-digest secret, minimum 32 characters
	TTLMinutes int
}

// RolesConfig names the community context and the role identifiers the
// verification outcome maps to. Protected roles survive a forced
// re-verification.
type RolesConfig struct { //nolint:govet // fieldalignment not critical for config structs
	ContextID        int64
	StandardRoleID   int64
	ElevatedRoleID   int64
	ProtectedRoleIDs []int64
}

type WaveConfig struct { //nolint:govet // fieldalignment not critical for config structs
	WindowDays        int
	DailyBatchPercent float64
	ReminderAfterDays int
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string
	Port     int
	From     string
	FromName string
	Username string
	Password string
	TLS      bool
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			Email:    cmd.String("tls-email"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		Provider: ProviderConfig{
			LoginURL:    cmd.String("provider-login-url"),
			ValidateURL: cmd.String("provider-validate-url"),
			Timeout:     int(cmd.Int("provider-timeout")),
		},
		Token: TokenConfig{
			Secret:     cmd.String("token-secret"),
			TTLMinutes: int(cmd.Int("token-ttl-minutes")),
		},
		Roles: RolesConfig{
			ContextID:        cmd.Int64("context-id"),
			StandardRoleID:   cmd.Int64("standard-role-id"),
			ElevatedRoleID:   cmd.Int64("elevated-role-id"),
			ProtectedRoleIDs: cmd.Int64Slice("protected-role-ids"),
		},
		Wave: WaveConfig{
			WindowDays:        int(cmd.Int("wave-window-days")),
			DailyBatchPercent: cmd.Float("wave-daily-batch-percent"),
			ReminderAfterDays: int(cmd.Int("wave-reminder-after-days")),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			TLS:      cmd.Bool("smtp-tls"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	return cfg
}

// CallbackURL is the service URL the provider redirects back to.
func (c *Config) CallbackURL() string {
	return strings.TrimSuffix(c.Server.BaseURL, "/") + "/auth/callback"
}

// Validate rejects configurations that must not reach a running server.
// Called once at startup; violations abort the process instead of
// failing lazily at first use.
func (c *Config) Validate() error {
	if len(c.Token.Secret) < 32 {
		return fmt.Errorf("token secret must be at least 32 characters long")
	}
	if c.Token.TTLMinutes <= 0 {
		return fmt.Errorf("token TTL must be positive, got %d", c.Token.TTLMinutes)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of: debug, info, warn, error (got %q)", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be one of: text, json (got %q)", c.Log.Format)
	}

	if c.Provider.LoginURL == "" {
		return fmt.Errorf("provider login URL is required")
	}
	if c.Provider.ValidateURL == "" {
		return fmt.Errorf("provider validate URL is required")
	}
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("provider timeout must be positive, got %d", c.Provider.Timeout)
	}

	if c.Roles.StandardRoleID == 0 {
		return fmt.Errorf("standard role id is required")
	}
	if c.Roles.ElevatedRoleID == 0 {
		return fmt.Errorf("elevated role id is required")
	}

	if c.Wave.WindowDays <= 0 {
		return fmt.Errorf("wave window days must be positive, got %d", c.Wave.WindowDays)
	}
	if c.Wave.DailyBatchPercent <= 0 {
		return fmt.Errorf("wave daily batch percent must be positive, got %g", c.Wave.DailyBatchPercent)
	}

	return nil
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	mode := strings.ToLower(cfg.TLS.Mode)

	// Determine if TLS will be used
	useTLS := shouldUseTLS(mode, host)

	scheme := "http"
	if useTLS {
		scheme = "https"
	}

	// ACME mode always uses port 443
	if mode == "acme" {
		return fmt.Sprintf("https://%s", host)
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func shouldUseTLS(mode, host string) bool {
	switch mode {
	case "off":
		return false
	case "acme", "selfsigned", "manual":
		return true
	default: // "auto" or empty
		return !IsLocalhost(host)
	}
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "External base URL the provider redirects back to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/gatekeeper.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "auto",
			Usage:   "TLS mode (auto, acme, selfsigned, manual, off)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_MODE"), toml.TOML("tls.mode", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Directory for auto-generated certificates",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_DIR"), toml.TOML("tls.cert_dir", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-email",
			Usage:   "Email for ACME/Let's Encrypt registration",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_EMAIL"), toml.TOML("tls.email", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_FILE"), toml.TOML("tls.cert_file", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_KEY_FILE"), toml.TOML("tls.key_file", configFile)),
		},
		// Identity provider flags
		&cli.StringFlag{
			Name:    "provider-login-url",
			Usage:   "Identity provider login page URL",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PROVIDER_LOGIN_URL"), toml.TOML("provider.login_url", configFile)),
		},
		&cli.StringFlag{
			Name:    "provider-validate-url",
			Usage:   "Identity provider ticket validation URL",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PROVIDER_VALIDATE_URL"), toml.TOML("provider.validate_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "provider-timeout",
			Value:   15,
			Usage:   "Ticket validation timeout in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PROVIDER_TIMEOUT"), toml.TOML("provider.timeout", configFile)),
		},
		// Token flags
		&cli.StringFlag{
			Name:    "token-secret",
			Usage:   "Secret for keyed token digests (minimum 32 characters)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TOKEN_SECRET"), toml.TOML("token.secret", configFile)),
		},
		&cli.IntFlag{
			Name:    "token-ttl-minutes",
			Value:   15,
			Usage:   "Verification token lifetime in minutes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TOKEN_TTL_MINUTES"), toml.TOML("token.ttl_minutes", configFile)),
		},
		// Community role flags. Role and context identifiers are 64-bit
		// snowflakes and must not be truncated on 32-bit platforms.
		&cli.Int64Flag{
			Name:    "context-id",
			Usage:   "Community context identifier",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CONTEXT_ID"), toml.TOML("roles.context_id", configFile)),
		},
		&cli.Int64Flag{
			Name:    "standard-role-id",
			Usage:   "Role granted to standard members",
			Sources: cli.NewValueSourceChain(cli.EnvVar("STANDARD_ROLE_ID"), toml.TOML("roles.standard_role_id", configFile)),
		},
		&cli.Int64Flag{
			Name:    "elevated-role-id",
			Usage:   "Role granted to elevated members",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ELEVATED_ROLE_ID"), toml.TOML("roles.elevated_role_id", configFile)),
		},
		&cli.Int64SliceFlag{
			Name:    "protected-role-ids",
			Usage:   "Roles never revoked during forced re-verification",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PROTECTED_ROLE_IDS"), toml.TOML("roles.protected_role_ids", configFile)),
		},
		// Reverification wave flags
		&cli.IntFlag{
			Name:    "wave-window-days",
			Value:   14,
			Usage:   "Days a reverification wave spreads its cohort across",
			Sources: cli.NewValueSourceChain(cli.EnvVar("WAVE_WINDOW_DAYS"), toml.TOML("wave.window_days", configFile)),
		},
		&cli.FloatFlag{
			Name:    "wave-daily-batch-percent",
			Value:   7.0,
			Usage:   "Percent of the wave population notified per day",
			Sources: cli.NewValueSourceChain(cli.EnvVar("WAVE_DAILY_BATCH_PERCENT"), toml.TOML("wave.daily_batch_percent", configFile)),
		},
		&cli.IntFlag{
			Name:    "wave-reminder-after-days",
			Value:   3,
			Usage:   "Days after notification before a reminder is sent",
			Sources: cli.NewValueSourceChain(cli.EnvVar("WAVE_REMINDER_AFTER_DAYS"), toml.TOML("wave.reminder_after_days", configFile)),
		},
		// SMTP flags (email fallback for reverification notices)
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host for email notifications (empty disables email)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "From address for notification emails",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Usage:   "From display name for notification emails",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP connections",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
	}
}
