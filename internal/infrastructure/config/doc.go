// Package config loads the LexGate Core configuration file.
//
// Load reads YAML over built-in defaults, applies LEXGATE_* environment
// overrides and validates the result. Every validation failure is reported
// in one error so an operator can fix the file in a single pass.
//
// Secrets stay out of the file. These are expected from the environment:
//
//	LEXGATE_JWT_SECRET          session token signing key (32+ bytes)
//	LEXGATE_ENCRYPTION_KEY      key for sealing IdP tokens at rest
//	LEXGATE_IDP_CLIENT_SECRET   OAuth2 client secret
//	LEXGATE_MQTT_PASSWORD       broker credentials
//	LEXGATE_INFLUXDB_TOKEN      InfluxDB API token
//
// session.secure_cookies may be turned off only for plain HTTP development;
// the session bridge then drops the Secure attribute from every cookie.
package config
