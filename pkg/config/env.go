package config

const (
	EnvPrefix = "BAZAAR"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "BAZAAR_APP_ENV"
	EnvLogLevel = "BAZAAR_LOG_LEVEL"

	EnvDBDSN  = "BAZAAR_DB_DSN"
	EnvDBHost = "BAZAAR_DB_HOST"
	EnvDBUser = "BAZAAR_DB_USER"
	EnvDBName = "BAZAAR_DB_NAME"

	EnvRedisURL     = "BAZAAR_REDIS_URL"
	EnvGCPProjectID = "BAZAAR_GCP_PROJECT_ID"

	EnvPubSubOrdersTopic        = "BAZAAR_PUBSUB_ORDERS_TOPIC"
	EnvPubSubNotificationSub    = "BAZAAR_PUBSUB_NOTIFICATION_SUBSCRIPTION"
	EnvCheckoutGuardTTL         = "BAZAAR_CHECKOUT_GUARD_TTL"
	EnvInventoryReserveAttempts = "BAZAAR_INVENTORY_RESERVE_ATTEMPTS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
