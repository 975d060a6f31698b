package config

import (
	"os"
	"path/filepath"
	"testing"

	"boothbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Config{
		Admin:    AdminConfig{Password: "secret", JWTSecret: "jwt"},
		Database: DatabaseConfig{Path: "test.db"},
		Event: EventConfig{
			Days: []EventDay{
				{Name: "friday", Date: "2025-03-14", Start: "09:00", End: "17:00"},
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("BOOTHBOOK_TEST_SECRET", "from-env")
	yamlContent := `
app:
  public_base_url: "https://book.example.com/"
admin:
  password: "pw"
  jwt_secret: "${BOOTHBOOK_TEST_SECRET}"
database:
  path: "test.db"
booking:
  booking_mode: automatic
  max_appointments_per_slot: 2
event:
  name: "Expo"
  timezone: "Europe/Berlin"
  days:
    - name: friday
      date: "2025-03-14"
      start: "09:00"
      end: "12:00"
    - name: saturday
      date: "2025-03-15"
      slots: ["10:00", "10:30"]
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Admin.JWTSecret)
	assert.Equal(t, "https://book.example.com", cfg.App.PublicBaseURL)
	assert.Equal(t, models.BookingModeAutomatic, cfg.Booking.BookingMode)
	assert.Len(t, cfg.Event.Days, 2)
	assert.Equal(t, []string{"10:00", "10:30"}, cfg.Event.Days[1].Slots)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "password hash only", mutate: func(c *Config) { c.Admin.Password = ""; c.Admin.PasswordHash = "$2a$10$x" }},
		{name: "missing admin password", mutate: func(c *Config) { c.Admin.Password = "" }, wantErr: true},
		{name: "missing jwt secret", mutate: func(c *Config) { c.Admin.JWTSecret = "" }, wantErr: true},
		{name: "missing database", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "bad booking mode", mutate: func(c *Config) { c.Booking.BookingMode = "sometimes" }, wantErr: true},
		{name: "bad mail provider", mutate: func(c *Config) { c.Mail.Provider = "pigeon" }, wantErr: true},
		{name: "bad reminder time", mutate: func(c *Config) { c.Reminder.Time = "9am" }, wantErr: true},
		{name: "no event days", mutate: func(c *Config) { c.Event.Days = nil }, wantErr: true},
		{name: "trusted proxies", mutate: func(c *Config) { c.HTTP.TrustedProxies = []string{"10.0.0.0/8", "192.0.2.1", "::1"} }},
		{name: "bad trusted proxy", mutate: func(c *Config) { c.HTTP.TrustedProxies = []string{"proxy.local"} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEvent(t *testing.T) {
	tests := []struct {
		name    string
		event   EventConfig
		wantErr bool
	}{
		{
			name:  "generated slots",
			event: EventConfig{Timezone: "UTC", Days: []EventDay{{Name: "friday", Date: "2025-03-14", Start: "09:00", End: "10:00"}}},
		},
		{
			name:    "duplicate day",
			event:   EventConfig{Timezone: "UTC", Days: []EventDay{{Name: "friday", Date: "2025-03-14", Start: "09:00", End: "10:00"}, {Name: "Friday", Date: "2025-03-15", Start: "09:00", End: "10:00"}}},
			wantErr: true,
		},
		{
			name:    "end before start",
			event:   EventConfig{Timezone: "UTC", Days: []EventDay{{Name: "friday", Date: "2025-03-14", Start: "12:00", End: "10:00"}}},
			wantErr: true,
		},
		{
			name:    "bad explicit slot",
			event:   EventConfig{Timezone: "UTC", Days: []EventDay{{Name: "friday", Date: "2025-03-14", Slots: []string{"25:00"}}}},
			wantErr: true,
		},
		{
			name:    "unknown timezone",
			event:   EventConfig{Timezone: "Mars/Olympus", Days: []EventDay{{Name: "friday", Date: "2025-03-14", Start: "09:00", End: "10:00"}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEvent(tt.event)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	assert.Equal(t, "09:00", cfg.Reminder.Time)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 8081, cfg.GRPC.Port)
	assert.Equal(t, "http://localhost:8080", cfg.App.PublicBaseURL)
	assert.Equal(t, models.BookingModeManual, cfg.Booking.BookingMode)
	assert.Equal(t, 1, cfg.Booking.MaxAppointmentsPerSlot)
	assert.Equal(t, models.DefaultAuditRetentionDays, cfg.Audit.RetentionDays)
	assert.Equal(t, "log", cfg.Mail.Provider)
	assert.Equal(t, models.WorkerQueueSize, cfg.Worker.QueueSize)
}

func TestDefaultSettings(t *testing.T) {
	cfg := validConfig()
	cfg.Event.Name = "Expo"
	cfg.Mail.AdminEmail = "ops@example.com"

	s := cfg.DefaultSettings()
	assert.Equal(t, 1, s.MaxAppointmentsPerSlot)
	assert.Equal(t, "Expo", s.EventName)
	assert.Equal(t, "ops@example.com", s.AdminEmail)
	assert.Equal(t, int64(0), s.Version)
}
