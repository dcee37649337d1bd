package config

import "github.com/caarlos0/env/v11"

// EnvPrefix is prepended to every variable name in the Config env tags,
// e.g. LIBRARY_SECRET_KEY.
const EnvPrefix = "LIBRARY_"

// parseEnv overlays fields whose environment variable is set. Unset
// variables leave the current value untouched. Durations use
// time.ParseDuration syntax ("90m"). Invalid values panic, like the other
// configuration sources.
func parseEnv(config *Config) {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		panic(err)
	}
}
