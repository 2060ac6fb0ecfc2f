// Package flytime parses flight-time service command flags and launches the
// service runtime.
package flytime

import (
	"context"
	"flag"

	entrypoint "github.com/skyfleet/flytime/internal/platform/cmd"
	flytimeapp "github.com/skyfleet/flytime/internal/services/flytime/app"
)

// Config holds flight-time service command configuration.
type Config struct {
	HTTPPort      int    `env:"FLYTIME_HTTP_PORT" envDefault:"8000"`
	HealthPort    int    `env:"FLYTIME_HEALTH_PORT" envDefault:"8001"`
	DBPath        string `env:"FLYTIME_DB_PATH" envDefault:"data/flytime.db"`
	MQTTBrokerURL string `env:"FLYTIME_MQTT_BROKER_URL" envDefault:"tcp://127.0.0.1:1883"`
	MQTTClientID  string `env:"FLYTIME_MQTT_CLIENT_ID" envDefault:"flytime-ledger"`
	MQTTUsername  string `env:"FLYTIME_MQTT_USERNAME"`
	MQTTPassword  string `env:"FLYTIME_MQTT_PASSWORD"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "The query API HTTP port")
	fs.IntVar(&cfg.HealthPort, "health-port", cfg.HealthPort, "The health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The ledger SQLite database path")
	fs.StringVar(&cfg.MQTTBrokerURL, "mqtt-broker", cfg.MQTTBrokerURL, "The MQTT broker URL")
	fs.StringVar(&cfg.MQTTClientID, "mqtt-client-id", cfg.MQTTClientID, "The MQTT client identifier")
	fs.StringVar(&cfg.MQTTUsername, "mqtt-username", cfg.MQTTUsername, "The MQTT username")
	fs.StringVar(&cfg.MQTTPassword, "mqtt-password", cfg.MQTTPassword, "The MQTT password")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the flight-time service runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceFlytime, func(context.Context) error {
		return flytimeapp.Run(ctx, flytimeapp.RuntimeConfig{
			HTTPPort:      cfg.HTTPPort,
			HealthPort:    cfg.HealthPort,
			DBPath:        cfg.DBPath,
			MQTTBrokerURL: cfg.MQTTBrokerURL,
			MQTTClientID:  cfg.MQTTClientID,
			MQTTUsername:  cfg.MQTTUsername,
			MQTTPassword:  cfg.MQTTPassword,
		})
	})
}
