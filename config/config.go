package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Settings configures the bridge process
type Settings struct {
	// Token is imported as an entry on start when not configured yet
	Token    string `mapstructure:"token"`
	Timezone string `mapstructure:"timezone" validate:"omitempty,timezone"`
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=trace debug info warn error fatal"`
	Entries  string `mapstructure:"entries" validate:"required"`
	MQTT     MQTT   `mapstructure:"mqtt"`
	HTTP     HTTP   `mapstructure:"http"`
}

type MQTT struct {
	Broker          string `mapstructure:"broker" validate:"required,url"`
	ClientID        string `mapstructure:"client_id" validate:"required"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix" validate:"required"`
	TopicPrefix     string `mapstructure:"topic_prefix" validate:"required"`
}

type HTTP struct {
	Listen string `mapstructure:"listen"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("token", "")
	v.SetDefault("timezone", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("entries", ".ngenic-entries.json")
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "ngenic")
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")
	v.SetDefault("mqtt.topic_prefix", "ngenic")
	v.SetDefault("http.listen", ":7070")
}

// Load reads settings from file (optional) and NGENIC_* environment variables
func Load(file string) (Settings, error) {
	var res Settings

	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("ngenic")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return res, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(&res); err != nil {
		return res, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(res); err != nil {
		return res, fmt.Errorf("invalid config: %w", err)
	}

	return res, nil
}

// Location returns the zone measurement windows are computed in. Without a
// configured zone TZ is used, then UTC. The zone must be named since the API
// receives its name.
func (s Settings) Location() (*time.Location, error) {
	name := s.Timezone
	if name == "" {
		name = os.Getenv("TZ")
	}
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
