package config

const (
	EnvPrefix = "TRIPOPS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	EnvAppEnv            = "TRIPOPS_APP_ENV"
	EnvPort              = "TRIPOPS_APP_PORT"
	EnvDBDSN             = "TRIPOPS_DB_DSN"
	EnvDBDriver          = "TRIPOPS_DB_DRIVER"
	EnvDBHost            = "TRIPOPS_DB_HOST"
	EnvDBUser            = "TRIPOPS_DB_USER"
	EnvDBName            = "TRIPOPS_DB_NAME"
	EnvRedisURL          = "TRIPOPS_REDIS_URL"
	EnvUseSQLite         = "TRIPOPS_USE_SQLITE"
	EnvStoreTimeout      = "TRIPOPS_STORE_OP_TIMEOUT"
	EnvOutboxMaxAttempts = "TRIPOPS_OUTBOX_MAX_ATTEMPTS"
	EnvLeaveTimezone     = "TRIPOPS_LEAVE_TIMEZONE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
