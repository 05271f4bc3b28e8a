// Package config handles configuration loading for the portal services.
//
// # Overview
//
// One file configures every service. Files ending in .toml are decoded with
// BurntSushi/toml; anything else is read as YAML. Missing values get
// defaults and the result is validated before use.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${PORTAL_JWT_SECRET}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	server:
//	  request_timeout: "10s"
//	identity:
//	  token_ttl: "24h"
//
// # Token Validation
//
// auth.validation selects how services check tokens. "local" verifies them
// in-process with auth.jwt_secret; "delegated" asks the identity service at
// auth.identity_addr. Both require the same secret on the identity service.
package config
