// Package config defines the dispatcher service configuration and the Loader
// abstraction used to obtain it.
package config

import "time"

// KafkaConfig holds broker and topic settings for the Kafka event bus.
type KafkaConfig struct {
	Brokers        []string `yaml:"brokers" mapstructure:"brokers"`
	ReportsTopic   string   `yaml:"reports_topic" mapstructure:"reports_topic"`
	PoisonTopic    string   `yaml:"poison_topic" mapstructure:"poison_topic"`
	ProbeTopic     string   `yaml:"probe_topic" mapstructure:"probe_topic"`
	LifecycleTopic string   `yaml:"lifecycle_topic" mapstructure:"lifecycle_topic"`
	GroupID        string   `yaml:"group_id" mapstructure:"group_id"`
	ClientID       string   `yaml:"client_id" mapstructure:"client_id"`
}

// ProbeConfig controls how the dispatcher probes formulas for liveness.
type ProbeConfig struct {
	// Interval is how often each live formula is probed.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	// RatePerSecond bounds the aggregate probe send rate.
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	// Burst is the probe rate limiter burst size.
	Burst int `yaml:"burst" mapstructure:"burst"`
}

// Config represents the top-level dispatcher configuration.
type Config struct {
	Kafka KafkaConfig `yaml:"kafka" mapstructure:"kafka"`
	Probe ProbeConfig `yaml:"probe" mapstructure:"probe"`
}

// Default values applied when a loader leaves probe settings unset.
const (
	DefaultProbeInterval = 10 * time.Second
	DefaultProbeRate     = 100.0
	DefaultProbeBurst    = 10
)

// ApplyDefaults fills unset probe settings with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Probe.Interval <= 0 {
		c.Probe.Interval = DefaultProbeInterval
	}
	if c.Probe.RatePerSecond <= 0 {
		c.Probe.RatePerSecond = DefaultProbeRate
	}
	if c.Probe.Burst <= 0 {
		c.Probe.Burst = DefaultProbeBurst
	}
}
