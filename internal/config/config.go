// Package config holds the viper-backed configuration singleton. Settings
// resolve in the usual precedence order: explicit flag binding, environment
// (WEFT_ prefix), config file, default.
package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config keys.
const (
	KeyDSN            = "dsn"
	KeyBackend        = "backend"
	KeySocketPath     = "socket-path"
	KeyRedisURL       = "redis-url"
	KeySpaceID        = "space-id"
	KeyOpTimeout      = "op-timeout"
	KeyAcquireTimeout = "acquire-timeout"
	KeyCostLimit      = "cost-limit"
)

var v *viper.Viper

// Initialize builds the viper instance with defaults, environment binding,
// and an optional weft.yaml in the working directory or /etc/weft.
func Initialize() error {
	v = viper.New()

	v.SetDefault(KeyDSN, "")
	v.SetDefault(KeyBackend, "mysql")
	v.SetDefault(KeySocketPath, "/tmp/weft.sock")
	v.SetDefault(KeyRedisURL, "")
	v.SetDefault(KeySpaceID, "")
	v.SetDefault(KeyOpTimeout, time.Second)
	v.SetDefault(KeyAcquireTimeout, time.Second)
	v.SetDefault(KeyCostLimit, 1000)

	v.SetEnvPrefix("WEFT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("weft")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/weft")
	if err := v.ReadInConfig(); err != nil {
		// Missing config files are fine; only a malformed file is an error.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

// BindPFlags binds a command's flag set so explicitly set flags win over
// environment and file values.
func BindPFlags(flags *pflag.FlagSet) error {
	ensure()
	return v.BindPFlags(flags)
}

func ensure() {
	if v == nil {
		_ = Initialize()
	}
}

// GetString returns the string value for key.
func GetString(key string) string {
	ensure()
	return v.GetString(key)
}

// GetInt returns the integer value for key.
func GetInt(key string) int {
	ensure()
	return v.GetInt(key)
}

// GetDuration returns the duration value for key.
func GetDuration(key string) time.Duration {
	ensure()
	return v.GetDuration(key)
}

// Set overrides a value, mainly from flag handling and tests.
func Set(key string, value any) {
	ensure()
	v.Set(key, value)
}
