// Package config provides application configuration management from environment variables.
//
// # Configuration Structure
//
// Server settings:
//
//	STATIONAUTH_HOST="0.0.0.0"
//	STATIONAUTH_PORT="8080"
//	STATIONAUTH_HEALTH_PORT="9090"
//
// Database and cache settings:
//
//	STATIONAUTH_POSTGRES_URL="postgres://localhost/stationauth"
//	STATIONAUTH_REDIS_ENABLED="true"
//	STATIONAUTH_REDIS_ADDR="localhost:6379"
//	STATIONAUTH_REDIS_CACHE_TTL="5m"
//
// SSO settings:
//
//	STATIONAUTH_SSO_ENABLED="true"
//	STATIONAUTH_SSO_ISSUER_URL="https://login.example.game"
//	STATIONAUTH_SSO_CLIENT_ID="..."
//	STATIONAUTH_SSO_CLIENT_SECRET="..."
//	STATIONAUTH_SSO_REDIRECT_URL="https://auth.example.org/auth/sso/callback"
//
// Cascade and notifier settings:
//
//	STATIONAUTH_CASCADE_WORKERS="2"
//	STATIONAUTH_CASCADE_BATCH_WORKERS="8"
//	STATIONAUTH_NOTIFY_CONFIG="/etc/stationauth/notify.yaml"
//
// Observability settings:
//
//	STATIONAUTH_LOG_LEVEL="info"  # debug, info, warn, error
//	STATIONAUTH_METRICS_ENABLED="true"
package config
