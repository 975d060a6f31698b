package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"boothbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	HTTP       HTTPConfig       `yaml:"http"`
	GRPC       GRPCConfig       `yaml:"grpc"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
	Backup     BackupConfig     `yaml:"backup"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Admin      AdminConfig      `yaml:"admin"`
	Event      EventConfig      `yaml:"event"`
	Booking    BookingConfig    `yaml:"booking"`
	Google     GoogleConfig     `yaml:"google"`
	Mail       MailConfig       `yaml:"mail"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Worker     WorkerConfig     `yaml:"worker"`
	Reminder   ReminderConfig   `yaml:"reminder"`
	Audit      AuditConfig      `yaml:"audit"`
}

type AppConfig struct {
	Name          string `yaml:"name"`
	Environment   string `yaml:"environment"`
	Version       string `yaml:"version"`
	PublicBaseURL string `yaml:"public_base_url"`
}

type HTTPConfig struct {
	Port                int `yaml:"port"`
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`

	// TrustedProxies are addresses or CIDR ranges whose X-Forwarded-For is
	// believed. Without them the client IP is the connection's peer.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type GRPCConfig struct {
	Enabled bool      `yaml:"enabled"`
	Port    int       `yaml:"port"`
	TLS     TLSConfig `yaml:"tls"`
}

type TLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

// RedisConfig describes the primary key-value store. An empty address selects
// the in-memory store.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type AdminConfig struct {
	Username          string  `yaml:"username"`
	Password          string  `yaml:"password"`
	PasswordHash      string  `yaml:"password_hash"`
	JWTSecret         string  `yaml:"jwt_secret"`
	SessionTTLMinutes int     `yaml:"session_ttl_minutes"`
	LoginRPS          float64 `yaml:"login_rps"`
	LoginBurst        int     `yaml:"login_burst"`
}

// SessionTTL returns the lifetime of an admin session token.
func (a AdminConfig) SessionTTL() time.Duration {
	return time.Duration(a.SessionTTLMinutes) * time.Minute
}

type EventConfig struct {
	Name        string     `yaml:"name"`
	Location    string     `yaml:"location"`
	Timezone    string     `yaml:"timezone"`
	SlotMinutes int        `yaml:"slot_minutes"`
	Days        []EventDay `yaml:"days"`
}

// EventDay is one day of the show. Slots are generated from Start to End in
// SlotMinutes steps unless listed explicitly.
type EventDay struct {
	Name  string   `yaml:"name"`
	Date  string   `yaml:"date"`
	Start string   `yaml:"start"`
	End   string   `yaml:"end"`
	Slots []string `yaml:"slots"`
}

// BookingConfig holds the defaults used until an admin stores settings.
type BookingConfig struct {
	MaxAppointmentsPerSlot int    `yaml:"max_appointments_per_slot"`
	BookingMode            string `yaml:"booking_mode"`
	PreventDuplicateEmail  bool   `yaml:"prevent_duplicate_email"`
	RateLimitingEnabled    bool   `yaml:"rate_limiting_enabled"`
	RateLimitMaxRequests   int    `yaml:"rate_limit_max_requests"`
	RateLimitWindowMinutes int    `yaml:"rate_limit_window_minutes"`
	AdminNotifications     bool   `yaml:"admin_notifications"`
	LockTimeoutMillis      int    `yaml:"lock_timeout_ms"`
	SettingsCacheSeconds   int    `yaml:"settings_cache_seconds"`
}

// DefaultSettings converts the configured booking defaults into settings.
func (c *Config) DefaultSettings() models.Settings {
	return models.Settings{
		MaxAppointmentsPerSlot: c.Booking.MaxAppointmentsPerSlot,
		BookingMode:            c.Booking.BookingMode,
		PreventDuplicateEmail:  c.Booking.PreventDuplicateEmail,
		RateLimitingEnabled:    c.Booking.RateLimitingEnabled,
		RateLimitMaxRequests:   c.Booking.RateLimitMaxRequests,
		RateLimitWindowMinutes: c.Booking.RateLimitWindowMinutes,
		AdminNotifications:     c.Booking.AdminNotifications,
		AdminEmail:             c.Mail.AdminEmail,
		EventName:              c.Event.Name,
		Location:               c.Event.Location,
		CompanyName:            c.App.Name,
		ContactEmail:           c.Mail.From,
	}
}

type GoogleConfig struct {
	CredentialsFile       string `yaml:"credentials_file"`
	CalendarID            string `yaml:"calendar_id"`
	SpreadsheetID         string `yaml:"spreadsheet_id"`
	SheetName             string `yaml:"sheet_name"`
	ImpersonateUser       string `yaml:"impersonate_user"`
	BreakerFailures       uint32 `yaml:"breaker_failures"`
	BreakerTimeoutSeconds int    `yaml:"breaker_timeout_seconds"`
}

type MailConfig struct {
	Provider   string     `yaml:"provider"`
	From       string     `yaml:"from"`
	FromName   string     `yaml:"from_name"`
	AdminEmail string     `yaml:"admin_email"`
	SMTP       SMTPConfig `yaml:"smtp"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type TelegramConfig struct {
	BotToken     string  `yaml:"bot_token"`
	AdminChatIDs []int64 `yaml:"admin_chat_ids"`
	Debug        bool    `yaml:"debug"`
}

type RabbitMQConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

type WorkerConfig struct {
	QueueSize        int `yaml:"queue_size"`
	MaxRetries       int `yaml:"max_retries"`
	RetryBaseSeconds int `yaml:"retry_base_seconds"`
	RetryMaxSeconds  int `yaml:"retry_max_seconds"`
}

type ReminderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Time    string `yaml:"time"`
}

type AuditConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

func Load(configPath string) (*Config, error) {
	// .env необязателен: в контейнере переменные приходят из окружения
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Admin.Password == "" && c.Admin.PasswordHash == "" {
		return errors.New("admin password or password_hash is required")
	}
	if c.Admin.JWTSecret == "" {
		return errors.New("admin jwt_secret is required")
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Booking.BookingMode != models.BookingModeManual && c.Booking.BookingMode != models.BookingModeAutomatic {
		return fmt.Errorf("unknown booking mode %q", c.Booking.BookingMode)
	}
	if c.Booking.MaxAppointmentsPerSlot < 1 {
		return errors.New("booking max_appointments_per_slot must be at least 1")
	}
	switch c.Mail.Provider {
	case "gmail", "smtp", "log":
	default:
		return fmt.Errorf("unknown mail provider %q", c.Mail.Provider)
	}
	if _, err := time.Parse("15:04", c.Reminder.Time); err != nil {
		return fmt.Errorf("invalid reminder time %q", c.Reminder.Time)
	}
	for _, proxy := range c.HTTP.TrustedProxies {
		if _, err := netip.ParsePrefix(proxy); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(proxy); err != nil {
			return fmt.Errorf("invalid http trusted proxy %q", proxy)
		}
	}

	return ValidateEvent(c.Event)
}

// ValidateEvent checks the show calendar: a loadable timezone and uniquely
// named days with parseable dates and hours.
func ValidateEvent(ev EventConfig) error {
	if _, err := time.LoadLocation(ev.Timezone); err != nil {
		return fmt.Errorf("invalid event timezone %q: %w", ev.Timezone, err)
	}
	if len(ev.Days) == 0 {
		return errors.New("event must have at least one day")
	}

	names := make(map[string]bool)
	for _, day := range ev.Days {
		name := strings.ToLower(strings.TrimSpace(day.Name))
		if name == "" {
			return errors.New("event day has empty name")
		}
		if names[name] {
			return fmt.Errorf("duplicate event day: %s", name)
		}
		names[name] = true

		if _, err := time.Parse("2006-01-02", day.Date); err != nil {
			return fmt.Errorf("event day %s has invalid date %q", day.Name, day.Date)
		}
		if len(day.Slots) > 0 {
			for _, slot := range day.Slots {
				if _, err := time.Parse("15:04", slot); err != nil {
					return fmt.Errorf("event day %s has invalid slot %q", day.Name, slot)
				}
			}
			continue
		}
		start, err := time.Parse("15:04", day.Start)
		if err != nil {
			return fmt.Errorf("event day %s has invalid start %q", day.Name, day.Start)
		}
		end, err := time.Parse("15:04", day.End)
		if err != nil {
			return fmt.Errorf("event day %s has invalid end %q", day.Name, day.End)
		}
		if !end.After(start) {
			return fmt.Errorf("event day %s ends before it starts", day.Name)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "boothbook"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSeconds == 0 {
		c.HTTP.ReadTimeoutSeconds = 10
	}
	if c.HTTP.WriteTimeoutSeconds == 0 {
		c.HTTP.WriteTimeoutSeconds = 15
	}
	if c.App.PublicBaseURL == "" {
		c.App.PublicBaseURL = fmt.Sprintf("http://localhost:%d", c.HTTP.Port)
	}
	c.App.PublicBaseURL = strings.TrimRight(c.App.PublicBaseURL, "/")
	if c.GRPC.Port == 0 {
		c.GRPC.Port = 8081
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Admin.Username == "" {
		c.Admin.Username = "admin"
	}
	if c.Admin.SessionTTLMinutes == 0 {
		c.Admin.SessionTTLMinutes = 12 * 60
	}
	if c.Admin.LoginRPS == 0 {
		c.Admin.LoginRPS = 0.2
	}
	if c.Admin.LoginBurst == 0 {
		c.Admin.LoginBurst = 5
	}

	if c.Event.Timezone == "" {
		c.Event.Timezone = "Europe/Berlin"
	}
	if c.Event.SlotMinutes == 0 {
		c.Event.SlotMinutes = models.DefaultSlotMinutes
	}

	// Booking defaults
	if c.Booking.MaxAppointmentsPerSlot == 0 {
		c.Booking.MaxAppointmentsPerSlot = 1
	}
	if c.Booking.BookingMode == "" {
		c.Booking.BookingMode = models.BookingModeManual
	}
	if c.Booking.RateLimitMaxRequests == 0 {
		c.Booking.RateLimitMaxRequests = 5
	}
	if c.Booking.RateLimitWindowMinutes == 0 {
		c.Booking.RateLimitWindowMinutes = 15
	}
	if c.Booking.LockTimeoutMillis == 0 {
		c.Booking.LockTimeoutMillis = 3000
	}
	if c.Booking.SettingsCacheSeconds == 0 {
		c.Booking.SettingsCacheSeconds = 5
	}

	if c.Google.SheetName == "" {
		c.Google.SheetName = "Appointments"
	}
	if c.Google.BreakerFailures == 0 {
		c.Google.BreakerFailures = 5
	}
	if c.Google.BreakerTimeoutSeconds == 0 {
		c.Google.BreakerTimeoutSeconds = 30
	}
	if c.Mail.Provider == "" {
		c.Mail.Provider = "log"
	}
	if c.Mail.SMTP.Port == 0 {
		c.Mail.SMTP.Port = 587
	}
	if c.RabbitMQ.Queue == "" {
		c.RabbitMQ.Queue = "boothbook.events"
	}

	if c.Worker.QueueSize == 0 {
		c.Worker.QueueSize = models.WorkerQueueSize
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 5
	}
	if c.Worker.RetryBaseSeconds == 0 {
		c.Worker.RetryBaseSeconds = 2
	}
	if c.Worker.RetryMaxSeconds == 0 {
		c.Worker.RetryMaxSeconds = 300
	}

	if c.Reminder.Time == "" {
		c.Reminder.Time = fmt.Sprintf("%02d:00", models.ReminderHour)
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = models.DefaultAuditRetentionDays
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 7
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "./backups"
	}
}
