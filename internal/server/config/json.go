package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/libraryauth/internal/flagx"
	"github.com/dmitrijs2005/libraryauth/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// Durations use timex.Duration, which accepts both strings such as "90m" and
// integer nanoseconds. CookieSecure is a pointer so an explicit false can be
// told apart from an absent key.
type JsonConfig struct {
	APIAddr           string         `json:"api_addr"`
	WebAddr           string         `json:"web_addr"`
	GRPCAddr          string         `json:"grpc_addr"`
	DatabaseDSN       string         `json:"database_dsn"`
	SecretKey         string         `json:"secret_key"`
	TokenTTL          timex.Duration `json:"token_ttl"`
	AnonymousTokenTTL timex.Duration `json:"anonymous_token_ttl"`
	SessionTTL        timex.Duration `json:"session_ttl"`
	CookieName        string         `json:"cookie_name"`
	CookieSecure      *bool          `json:"cookie_secure"`
	LoginPath         string         `json:"login_path"`
	LogLevel          string         `json:"log_level"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags. If neither
// is set, no JSON file is loaded. Keys absent from the file keep their
// current values. If the file cannot be read or contains invalid JSON, the
// function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.APIAddr, c.APIAddr)
	setString(&config.WebAddr, c.WebAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.CookieName, c.CookieName)
	setString(&config.LoginPath, c.LoginPath)
	setString(&config.LogLevel, c.LogLevel)

	if c.TokenTTL.Duration != 0 {
		config.TokenTTL = c.TokenTTL.Duration
	}
	if c.AnonymousTokenTTL.Duration != 0 {
		config.AnonymousTokenTTL = c.AnonymousTokenTTL.Duration
	}
	if c.SessionTTL.Duration != 0 {
		config.SessionTTL = c.SessionTTL.Duration
	}
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
