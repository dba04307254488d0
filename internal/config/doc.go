// Package config loads, normalizes, and validates reelsmith configuration.
//
// Configuration lives in a TOML file (default ~/.config/reelsmith/config.toml
// or ./reelsmith.toml). Provider credentials may also come from environment
// variables or a .env file loaded through godotenv. Load returns the parsed
// config, the resolved path, and whether the file existed, so commands can
// explain where settings came from.
package config
