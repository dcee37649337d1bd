package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/libraryauth/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   API bind address (e.g., ":8080")
//	-w string   web bind address (e.g., ":8081")
//	-g string   gRPC bind address (e.g., ":50051")
//	-d string   credential store DSN
//	-s string   token HMAC secret key
//	-t int      API token validity, minutes
//	-n int      anonymous token validity, minutes
//	-m int      web session validity, minutes
//	-l string   log level
//
// Notes:
//   - Only the flags above are read from os.Args (flagx.ParseKnown), so the
//     admin command flags and -c can share the same command line.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.APIAddr, "a", config.APIAddr, "address and port of the JSON API")
	fs.StringVar(&config.WebAddr, "w", config.WebAddr, "address and port of the web surface")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "address and port of the gRPC listener")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenTTL := fs.Int("t", int(config.TokenTTL.Minutes()), "token validity (in minutes)")
	anonymousTokenTTL := fs.Int("n", int(config.AnonymousTokenTTL.Minutes()), "anonymous token validity (in minutes)")
	sessionTTL := fs.Int("m", int(config.SessionTTL.Minutes()), "session cookie validity (in minutes)")

	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := flagx.ParseKnown(fs, os.Args[1:]); err != nil {
		panic(err)
	}

	// Only flags given on the command line override a TTL, so sub-minute
	// values from env or JSON survive.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.TokenTTL = time.Duration(*tokenTTL) * time.Minute
		case "n":
			config.AnonymousTokenTTL = time.Duration(*anonymousTokenTTL) * time.Minute
		case "m":
			config.SessionTTL = time.Duration(*sessionTTL) * time.Minute
		}
	})
}
