// Package config provides functionality for managing configuration options
// for the application using command-line flags, an optional JSON file and
// environment variables.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"address"`

	// DatabaseDSN holds the database connection string. "memory://" selects
	// the in-process store.
	DatabaseDSN string `json:"database_dsn"`

	// Config is the path to the Config file.
	Config string `json:"-"`

	// AdminUsername and AdminPassword seed the administrator account.
	AdminUsername string `json:"admin_username"`
	AdminPassword string `json:"admin_password"`

	// InitialMode is the difficulty applied at startup.
	InitialMode string `json:"initial_mode"`

	// JWTSecret signs access and refresh tokens. Durations are read from
	// the config file through fileDurations.
	JWTSecret       string        `json:"jwt_secret"`
	AccessTokenTTL  time.Duration `json:"-"`
	RefreshTokenTTL time.Duration `json:"-"`
	SessionTTL      time.Duration `json:"-"`

	LogLevel string `json:"log_level"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `json:"tls_cert"`
	TLSKey  string `json:"tls_key"`

	// SeedTestData creates a test user with sample pastes at startup.
	SeedTestData bool `json:"seed_test_data"`

	// CleanupInterval is the period of the expired-data cleaner.
	CleanupInterval time.Duration `json:"-"`
}

// Duration is a config file duration written as a string such as "15m" or
// as a number of nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(v)
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
	return nil
}

type fileDurations struct {
	AccessTokenTTL  *Duration `json:"access_token_ttl"`
	RefreshTokenTTL *Duration `json:"refresh_token_ttl"`
	SessionTTL      *Duration `json:"session_ttl"`
	CleanupInterval *Duration `json:"cleanup_interval"`
}

// apply copies the durations present in the file onto o.
func (f fileDurations) apply(o *Options) {
	set := func(dst *time.Duration, src *Duration) {
		if src != nil {
			*dst = time.Duration(*src)
		}
	}
	set(&o.AccessTokenTTL, f.AccessTokenTTL)
	set(&o.RefreshTokenTTL, f.RefreshTokenTTL)
	set(&o.SessionTTL, f.SessionTTL)
	set(&o.CleanupInterval, f.CleanupInterval)
}

// MemoryDSN selects the in-process store.
const MemoryDSN = "memory://"

// Parse parses the command-line flags and environment variables to set
// configuration values. It returns a pointer to the Options struct containing
// the parsed configuration values. Invalid input terminates the process.
func Parse() *Options {
	opts, err := parse(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return opts
}

func parse(fs *flag.FlagSet, args []string, getenv func(string) string) (*Options, error) {
	options := &Options{}
	fs.StringVar(&options.Port, "a", "127.0.0.1:5013", "run on ip:port server")
	fs.StringVar(&options.DatabaseDSN, "d", MemoryDSN, "db address")
	fs.StringVar(&options.Config, "config", "config.json", "path to config file")
	fs.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
	fs.StringVar(&options.AdminUsername, "admin-user", "admin", "administrator username")
	fs.StringVar(&options.AdminPassword, "admin-password", "dvga_admin_password", "administrator password")
	fs.StringVar(&options.InitialMode, "mode", "easy", "initial difficulty: easy | hard")
	fs.StringVar(&options.JWTSecret, "jwt-secret", "dev-secret-key", "token signing secret")
	fs.DurationVar(&options.AccessTokenTTL, "access-ttl", time.Hour, "access token lifetime")
	fs.DurationVar(&options.RefreshTokenTTL, "refresh-ttl", 7*24*time.Hour, "refresh token lifetime")
	fs.DurationVar(&options.SessionTTL, "session-ttl", 24*time.Hour, "session lifetime")
	fs.StringVar(&options.LogLevel, "log-level", "Info", "log level")
	fs.StringVar(&options.TLSCert, "tls-cert", "", "TLS certificate path")
	fs.StringVar(&options.TLSKey, "tls-key", "", "TLS key path")
	fs.BoolVar(&options.SeedTestData, "seed", false, "create sample user and pastes")
	fs.DurationVar(&options.CleanupInterval, "cleanup-interval", time.Hour, "expired data cleanup interval")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Override flags with environment variables if set
	if configPath := getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				return nil, fmt.Errorf("error while reading config file: %w", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				return nil, fmt.Errorf("error while parsing config file: %w", err)
			}
			var durations fileDurations
			if err := json.Unmarshal(data, &durations); err != nil {
				return nil, fmt.Errorf("error while parsing config file: %w", err)
			}
			durations.apply(options)
		}
	}

	overrides := map[string]*string{
		"SERVER_ADDRESS":      &options.Port,
		"DATABASE_URL":        &options.DatabaseDSN,
		"ADMIN_USERNAME":      &options.AdminUsername,
		"DVGA_ADMIN_PASSWORD": &options.AdminPassword,
		"INITIAL_MODE":        &options.InitialMode,
		"JWT_SECRET_KEY":      &options.JWTSecret,
		"LOG_LEVEL":           &options.LogLevel,
		"TLS_CERT":            &options.TLSCert,
		"TLS_KEY":             &options.TLSKey,
	}
	for key, dst := range overrides {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	if v := getenv("SEED_TEST_DATA"); v != "" {
		seed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SEED_TEST_DATA %q: %w", v, err)
		}
		options.SeedTestData = seed
	}

	if options.InitialMode != "easy" && options.InitialMode != "hard" {
		return nil, fmt.Errorf("invalid initial mode %q: must be easy or hard", options.InitialMode)
	}
	return options, nil
}
