// Package envloader loads dispatcher configuration through viper, layering
// environment variables over an optional config file so deployments can
// override individual settings without editing files.
package envloader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/spirals/formula-dispatch/internal/config"
)

// EnvLoader implements config.Loader using viper. Environment variables use
// the DISPATCH_ prefix with underscores for nesting, e.g.
// DISPATCH_KAFKA_GROUP_ID overrides kafka.group_id.
type EnvLoader struct {
	// configFile is an optional yaml file read before env overrides.
	configFile string
}

// NewEnvLoader creates an EnvLoader. An empty configFile means env-only.
func NewEnvLoader(configFile string) *EnvLoader {
	return &EnvLoader{configFile: configFile}
}

// Load builds the configuration from the optional file and the environment.
func (l *EnvLoader) Load(ctx context.Context) (*config.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults keep the dispatcher runnable with a bare environment.
	v.SetDefault("probe.interval", config.DefaultProbeInterval)
	v.SetDefault("probe.rate_per_second", config.DefaultProbeRate)
	v.SetDefault("probe.burst", config.DefaultProbeBurst)

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
			}
		}
	}

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()

	return &cfg, nil
}
