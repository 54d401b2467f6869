package dbcore

import (
	"os"
	"testing"
	"time"
)

// Load reads the process environment, so these tests use t.Setenv and do
// not run in parallel.

func clearDatabaseEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"DATABASE_URL", "DATABASE_CONN_URL", "DATABASE_DRIVER", "DATABASE_ENV",
		"DATABASE_MAX_CONNS", "DATABASE_MIN_CONNS",
		"DATABASE_MAX_CONN_LIFETIME", "DATABASE_MAX_CONN_IDLE_TIME",
		"DATABASE_HEALTHCHECK_PERIOD", "DATABASE_CONNECT_TIMEOUT",
		"DATABASE_COMMAND_TIMEOUT", "DATABASE_ACQUIRE_TIMEOUT",
		"DATABASE_READINESS_TIMEOUT", "DATABASE_WARMUP_ATTEMPTS",
		"DATABASE_WARMUP_INTERVAL", "DATABASE_WARMUP_STEP_TIMEOUT",
	} {
		// Setenv registers the restore; Unsetenv leaves the variable truly
		// absent so envDefault semantics are what production sees.
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearDatabaseEnv(t)
	t.Setenv("DATABASE_URL", testConnString)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.ConnectionString != testConnString {
		t.Fatalf("ConnectionString=%q, want %q", cfg.ConnectionString, testConnString)
	}
	if cfg.Driver != DriverPgx {
		t.Fatalf("Driver=%q, want %q", cfg.Driver, DriverPgx)
	}
	if cfg.Environment != EnvDevelopment {
		t.Fatalf("Environment=%q, want %q", cfg.Environment, EnvDevelopment)
	}
	if cfg.MaxConns != 10 || cfg.MinConns != 2 {
		t.Fatalf("pool size=%d/%d, want 10/2", cfg.MaxConns, cfg.MinConns)
	}
	if cfg.MaxConnLifetime != 30*time.Minute {
		t.Fatalf("MaxConnLifetime=%v, want 30m", cfg.MaxConnLifetime)
	}
	if cfg.ConnectTimeout != 10*time.Second {
		t.Fatalf("ConnectTimeout=%v, want 10s", cfg.ConnectTimeout)
	}
	if cfg.WarmupAttempts != 3 || cfg.WarmupInterval != 2*time.Second {
		t.Fatalf("warmup=%d/%v, want 3/2s", cfg.WarmupAttempts, cfg.WarmupInterval)
	}
}

func TestLoad_LegacyAliasFallback(t *testing.T) {
	clearDatabaseEnv(t)
	t.Setenv("DATABASE_CONN_URL", testConnString)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.ConnectionString != testConnString {
		t.Fatalf("ConnectionString=%q, alias not honored", cfg.ConnectionString)
	}
}

func TestLoad_PrimaryVariableWinsOverAlias(t *testing.T) {
	clearDatabaseEnv(t)
	t.Setenv("DATABASE_URL", testConnString)
	t.Setenv("DATABASE_CONN_URL", "postgres://other:pw@example.com:5432/other")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.ConnectionString != testConnString {
		t.Fatalf("ConnectionString=%q, want primary variable", cfg.ConnectionString)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearDatabaseEnv(t)
	t.Setenv("DATABASE_URL", testConnString)
	t.Setenv("DATABASE_ENV", "production")
	t.Setenv("DATABASE_MAX_CONNS", "25")
	t.Setenv("DATABASE_CONNECT_TIMEOUT", "3s")
	t.Setenv("DATABASE_WARMUP_ATTEMPTS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Environment != EnvProduction {
		t.Fatalf("Environment=%q, want production", cfg.Environment)
	}
	if cfg.MaxConns != 25 {
		t.Fatalf("MaxConns=%d, want 25", cfg.MaxConns)
	}
	if cfg.ConnectTimeout != 3*time.Second {
		t.Fatalf("ConnectTimeout=%v, want 3s", cfg.ConnectTimeout)
	}
	if cfg.WarmupAttempts != 7 {
		t.Fatalf("WarmupAttempts=%d, want 7", cfg.WarmupAttempts)
	}
}

func TestLoad_MalformedValueIsConfigError(t *testing.T) {
	clearDatabaseEnv(t)
	t.Setenv("DATABASE_MAX_CONNS", "plenty")

	_, err := Load()
	assertKind(t, err, KindConfig)
}

func TestConfig_WithDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	if cfg.Driver != DriverPgx {
		t.Fatalf("Driver=%q, want %q", cfg.Driver, DriverPgx)
	}
	if cfg.MaxConns != defaultMaxConns {
		t.Fatalf("MaxConns=%d, want %d", cfg.MaxConns, defaultMaxConns)
	}
	// A hand-built zero Config keeps MinConns at zero rather than forcing
	// warm connections on callers that never asked for them.
	if cfg.MinConns != 0 {
		t.Fatalf("MinConns=%d, want 0", cfg.MinConns)
	}

	clamped := Config{MaxConns: 4, MinConns: 9}.withDefaults()
	if clamped.MinConns != 4 {
		t.Fatalf("MinConns=%d, want clamped to MaxConns", clamped.MinConns)
	}
}
