package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "payroll.db", cfg.Database.Path)
	assert.Equal(t, 22, cfg.Payroll.DefaultWorkingDays)
	assert.Equal(t, 2020, cfg.Payroll.MinYear)
	assert.Equal(t, 2050, cfg.Payroll.MaxYear)
	assert.Equal(t, 4, cfg.Payroll.Workers)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 25, cfg.Scheduler.RunDay)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, "system", cfg.Scheduler.Actor)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PAYROLL_SERVER_PORT", "9090")
	t.Setenv("PAYROLL_DATABASE_DRIVER", "memory")
	t.Setenv("PAYROLL_PAYROLL_WORKERS", "8")
	t.Setenv("PAYROLL_SCHEDULER_INTERVAL", "5m")

	cfg, err := config.Load("")

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 8, cfg.Payroll.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 7000
  cors_origins: ["https://payroll.example.com"]
database:
  driver: postgres
  url: postgres://payroll@localhost/payroll
payroll:
  default_working_days: 20
scheduler:
  enabled: true
  run_day: 27
logger:
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, []string{"https://payroll.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 20, cfg.Payroll.DefaultWorkingDays)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 27, cfg.Scheduler.RunDay)
	assert.Equal(t, "console", cfg.Logger.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		cfg, err := config.Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad port", func(c *config.Config) { c.Server.Port = 0 }},
		{"unknown driver", func(c *config.Config) { c.Database.Driver = "mysql" }},
		{"postgres without url", func(c *config.Config) { c.Database.Driver = "postgres" }},
		{"sqlite without path", func(c *config.Config) { c.Database.Path = "" }},
		{"working days", func(c *config.Config) { c.Payroll.DefaultWorkingDays = 40 }},
		{"year range", func(c *config.Config) { c.Payroll.MinYear = 2060 }},
		{"workers", func(c *config.Config) { c.Payroll.Workers = 0 }},
		{"run day", func(c *config.Config) { c.Scheduler.Enabled = true; c.Scheduler.RunDay = 31 }},
		{"log format", func(c *config.Config) { c.Logger.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
