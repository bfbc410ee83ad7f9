package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the service configuration read from the environment.
type Config struct {
	Port     string `env:"PORT" envDefault:"8083"`
	GRPCPort string `env:"GRPC_PORT" envDefault:"9083"`

	DBDriver string `env:"DB_DRIVER" envDefault:"postgres"`
	DBDSN    string `env:"DB_DSN"`

	JWTSecret string `env:"JWT_SECRET"`

	AMQPURL         string `env:"AMQP_URL"`
	AMQPExchange    string `env:"AMQP_EXCHANGE" envDefault:"platform.events"`
	AuditRoutingKey string `env:"AUDIT_ROUTING_KEY" envDefault:"audit.chat-realtime"`

	ServiceName  string `env:"SERVICE_NAME" envDefault:"chat-realtime"`
	Environment  string `env:"ENVIRONMENT" envDefault:"development"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	DeliveryDelay       time.Duration `env:"DELIVERY_DELAY" envDefault:"1s"`
	AdminsCanAddMembers bool          `env:"ADMINS_CAN_ADD_MEMBERS" envDefault:"true"`

	WSSendBuffer     int           `env:"WS_SEND_BUFFER" envDefault:"64"`
	WSMaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE" envDefault:"65536"`
	WSRateBurst      int           `env:"WS_RATE_BURST" envDefault:"20"`
	WSRateInterval   time.Duration `env:"WS_RATE_INTERVAL" envDefault:"100ms"`

	DebugRoutes bool `env:"DEBUG_ROUTES" envDefault:"false"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	return Parse()
}

// Parse reads the process environment and validates the result.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver))
	}
	if c.DBDSN == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}
	if c.DeliveryDelay <= 0 {
		errs = append(errs, errors.New("DELIVERY_DELAY must be positive"))
	}
	if c.WSSendBuffer < 1 {
		errs = append(errs, errors.New("WS_SEND_BUFFER must be at least 1"))
	}
	if c.WSMaxMessageSize < 1024 {
		errs = append(errs, errors.New("WS_MAX_MESSAGE_SIZE must be at least 1024"))
	}
	if c.WSRateBurst < 1 {
		errs = append(errs, errors.New("WS_RATE_BURST must be at least 1"))
	}
	if c.WSRateInterval <= 0 {
		errs = append(errs, errors.New("WS_RATE_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}
