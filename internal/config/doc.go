// Package config handles configuration loading for parley-gateway.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the PARLEY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/parley/gateway.yaml
//  3. ~/.config/parley/gateway.yaml
//
// Files ending in .toml are read as TOML; anything else as YAML.
//
// # Environment
//
// A .env file in the working directory is loaded before the config file.
// Values can then reference environment variables:
//
//	llm:
//	  api_key: "${OPENAI_API_KEY}"
//
// Unset variables expand to the empty string. An empty llm.api_key is not an
// error: "llm" agents fall back to echoing.
//
// # Durations
//
// Duration values use Go's time.ParseDuration syntax:
//
//	agents:
//	  echo_delay: "300ms"
//	conversations:
//	  lock:
//	    retry_delay: "1s"
//	    timeout: "5s"
//
// # Backends
//
// database.backend is one of sqlite (default, needs path), redis (needs
// redis_url), mongo (needs mongo_uri) or memory.
package config
