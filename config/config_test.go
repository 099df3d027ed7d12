package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  host: db.internal
  name: policies
jwt:
  secret: s3cret
persistence:
  driver: postgres
  retry_backoff: 20ms
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port, "defaults fill unset keys")
	assert.Equal(t, 20*time.Millisecond, cfg.Persistence.RetryBackoff)
	assert.Equal(t, 16, cfg.Password.DefaultLength)
	assert.Equal(t, "admin", cfg.JWT.AdminRole)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db.internal
  name: policies
jwt:
  secret: from-file
`)
	t.Setenv("PASSPOLICY_JWT_SECRET", "from-env")
	t.Setenv("PASSPOLICY_DATABASE_PORT", "6543")
	t.Setenv("PASSPOLICY_PERSISTENCE_RETRY_ATTEMPTS", "7")
	t.Setenv("PASSPOLICY_RATE_LIMIT_BURST", "3")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, 7, cfg.Persistence.RetryAttempts)
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestLoadConfigBadEnvironmentValue(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\n")
	t.Setenv("PASSPOLICY_SERVER_PORT", "not-a-number")

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Server:      ServerConfig{Port: 8080},
		JWT:         JWTConfig{Secret: "x"},
		Persistence: PersistenceConfig{Driver: DriverMemory},
		Password:    PasswordConfig{DefaultLength: 16},
	}
	assert.NoError(t, cfg.Validate())

	cfg.Persistence.Driver = "sqlite"
	cfg.JWT.Secret = ""
	cfg.Redis = RedisConfig{Enabled: true}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret is required")
	assert.Contains(t, err.Error(), `persistence.driver "sqlite" is not supported`)
	assert.Contains(t, err.Error(), "redis.url is required")

	cfg = &Config{
		Server:      ServerConfig{Port: 8080},
		JWT:         JWTConfig{Secret: "x"},
		Persistence: PersistenceConfig{Driver: DriverPostgres},
		Password:    PasswordConfig{DefaultLength: 16},
	}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.host is required")
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{Host: "h", Port: 1, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=h port=1 user=u password=p dbname=n sslmode=disable", c.DSN())
}
