package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Store        StoreConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TRIPOPS_APP_ENV" required:"true"`
	Port         string `envconfig:"TRIPOPS_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TRIPOPS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TRIPOPS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TRIPOPS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TRIPOPS_DB_DSN"`
	Driver string `envconfig:"TRIPOPS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TRIPOPS_DB_HOST"`
	LegacyPort     int    `envconfig:"TRIPOPS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TRIPOPS_DB_USER"`
	LegacyPassword string `envconfig:"TRIPOPS_DB_PASSWORD"`
	LegacyName     string `envconfig:"TRIPOPS_DB_NAME"`
	LegacySSLMode  string `envconfig:"TRIPOPS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TRIPOPS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRIPOPS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRIPOPS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRIPOPS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the document store runs on the embedded driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"TRIPOPS_REDIS_URL"`
	Address      string        `envconfig:"TRIPOPS_REDIS_ADDR"`
	Password     string        `envconfig:"TRIPOPS_REDIS_PASSWORD"`
	DB           int           `envconfig:"TRIPOPS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TRIPOPS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRIPOPS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRIPOPS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRIPOPS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TRIPOPS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TRIPOPS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TRIPOPS_AUTO_MIGRATE" default:"false"`
}

// StoreConfig bounds every document store round trip.
type StoreConfig struct {
	OperationTimeout time.Duration `envconfig:"TRIPOPS_STORE_OP_TIMEOUT" default:"5s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TRIPOPS_OUTBOX_RELAY_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TRIPOPS_OUTBOX_RELAY_POLL_MS" default:"2000"`
	MaxAttempts    int `envconfig:"TRIPOPS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// PollInterval converts the configured millisecond poll into a duration.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"TRIPOPS_CRON_INTERVAL" default:"1h"`
	LockTTL         time.Duration `envconfig:"TRIPOPS_CRON_LOCK_TTL" default:"10m"`
	LeaveTZ         string        `envconfig:"TRIPOPS_LEAVE_TIMEZONE" default:"UTC"`
	LeaveEnabled    bool          `envconfig:"TRIPOPS_LEAVE_ACCRUAL_ENABLED" default:"true"`
	OutboxRetention time.Duration `envconfig:"TRIPOPS_OUTBOX_RETENTION" default:"720h"`
}

// Location resolves the timezone the monthly leave period is computed in.
func (c CronConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.LeaveTZ)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading leave timezone %q: %w", name, err)
	}
	return loc, nil
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:tripops.db?cache=shared"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
