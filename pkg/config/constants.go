package config

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "SHOPTRACE"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvDBDSN  = "SHOPTRACE_DB_DSN"
	EnvDBHost = "SHOPTRACE_DB_HOST"
	EnvDBUser = "SHOPTRACE_DB_USER"
	EnvDBName = "SHOPTRACE_DB_NAME"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
