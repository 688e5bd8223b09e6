package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 10*time.Second, cfg.Notifications.Timeout)
	assert.Equal(t, NotifyDriverConsole, cfg.Notifications.Driver)
	assert.Equal(t, "SMS", cfg.Notifications.AbsenceGuardianChannel)
	assert.Equal(t, "SMS", cfg.Fees.ReminderChannel)
	assert.Equal(t, 10*time.Minute, cfg.Fees.StatusCacheTTL)
	assert.Equal(t, time.Hour, cfg.Database.ConnMaxLifetime)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("NOTIFY_TIMEOUT", "3s")
	v.Set("ABSENCE_GUARDIAN_CHANNEL", "whatsapp")
	v.Set("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	v.Set("FEE_STATUS_CACHE_TTL", "not-a-duration")

	cfg := fromViper(v)
	assert.Equal(t, 3*time.Second, cfg.Notifications.Timeout)
	assert.Equal(t, "WHATSAPP", cfg.Notifications.AbsenceGuardianChannel)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 10*time.Minute, cfg.Fees.StatusCacheTTL)
}
