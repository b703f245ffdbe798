// Package config loads the skill configuration from a TOML file with
// environment variable overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigPath is used when no path is given on the command line
// and PRIVATE_ASSISTANT_CONFIG_PATH is unset.
const DefaultConfigPath = "config.toml"

// FindConfig resolves the config file path. An explicit path (from the
// command line) wins, then the PRIVATE_ASSISTANT_CONFIG_PATH environment
// variable, then [DefaultConfigPath]. The resolved file must exist.
func FindConfig(explicit string) (string, error) {
	path := explicit
	if path == "" {
		path = os.Getenv("PRIVATE_ASSISTANT_CONFIG_PATH")
	}
	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("config file not found: %s", path)
	}
	return path, nil
}

// Config holds all skill configuration. It is loaded once at startup
// and treated as immutable for the process lifetime.
type Config struct {
	Skill SkillConfig `mapstructure:"skill"`
	IoT   IoTConfig   `mapstructure:"iot"`
}

// SkillConfig carries the base assistant framework settings: the MQTT
// broker connection, the skill's client identity, and the topic the
// intent engine publishes analysis results to.
type SkillConfig struct {
	ClientID       string `mapstructure:"client_id"`
	MQTTServerHost string `mapstructure:"mqtt_server_host"`
	MQTTServerPort int    `mapstructure:"mqtt_server_port"`
	MQTTUsername   string `mapstructure:"mqtt_username"`
	MQTTPassword   string `mapstructure:"mqtt_password"`
	IntentTopic    string `mapstructure:"intent_analysis_topic"`
	LogLevel       string `mapstructure:"log_level"`
}

// IoTConfig carries the connection parameters for the IoT time-series
// database. Every field can be overridden through an IOT_POSTGRES_*
// environment variable so secrets stay out of the config file.
type IoTConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
}

// iotEnvOverrides maps config keys to the environment variables that
// override them. The prefix matches the upstream ingest pipeline so one
// set of secrets serves both services.
var iotEnvOverrides = map[string]string{
	"iot.user":     "IOT_POSTGRES_USER",
	"iot.password": "IOT_POSTGRES_PASSWORD",
	"iot.host":     "IOT_POSTGRES_HOST",
	"iot.port":     "IOT_POSTGRES_PORT",
	"iot.database": "IOT_POSTGRES_DB",
}

// Load reads configuration from a TOML file and applies environment
// overrides. Missing optional fields fall back to defaults; a missing
// or unparsable file is an error (startup config failures are fatal to
// the process, by contract with the framework).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetDefault("skill.client_id", "iot_state_skill")
	v.SetDefault("skill.mqtt_server_host", "localhost")
	v.SetDefault("skill.mqtt_server_port", 1883)
	v.SetDefault("skill.intent_analysis_topic", "assistant/intent_engine/result")
	v.SetDefault("skill.log_level", "info")
	v.SetDefault("iot.user", "postgres")
	v.SetDefault("iot.password", "postgres")
	v.SetDefault("iot.host", "localhost")
	v.SetDefault("iot.port", 5432)
	v.SetDefault("iot.database", "postgres")

	for key, env := range iotEnvOverrides {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Skill.ClientID) == "" {
		return fmt.Errorf("skill.client_id must not be empty")
	}
	if c.Skill.MQTTServerPort <= 0 || c.Skill.MQTTServerPort > 65535 {
		return fmt.Errorf("skill.mqtt_server_port out of range: %d", c.Skill.MQTTServerPort)
	}
	if c.IoT.Port <= 0 || c.IoT.Port > 65535 {
		return fmt.Errorf("iot.port out of range: %d", c.IoT.Port)
	}
	return nil
}

// BrokerURL returns the MQTT broker URL. A host without a scheme gets
// the plain mqtt:// scheme; mqtts:// or ssl:// hosts keep theirs so the
// transport can enable TLS.
func (c *SkillConfig) BrokerURL() string {
	host := c.MQTTServerHost
	if !strings.Contains(host, "://") {
		host = "mqtt://" + host
	}
	return fmt.Sprintf("%s:%d", host, c.MQTTServerPort)
}

// DSN returns the Postgres connection string for the IoT database.
// User and password are URL-escaped so special characters in secrets
// survive the round trip.
func (c *IoTConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Database,
	)
}
