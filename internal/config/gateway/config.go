package gateway_config

import (
	"time"

	"github.com/omnicore/gateway/internal/obs"
	pg "github.com/omnicore/gateway/internal/repository/postgres"
	rd "github.com/omnicore/gateway/internal/repository/redis"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

// Production reports whether the deployment enforces strict origin and rate
// policies. Staging counts as production for both.
func (a *App) Production() bool {
	return a.Env == "production" || a.Env == "staging"
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type Auth struct {
	TokenSecret string        `mapstructure:"token_secret"`
	AccessTTL   time.Duration `mapstructure:"access_ttl"`
	RefreshTTL  time.Duration `mapstructure:"refresh_ttl"`
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
}

type CORS struct {
	Origins []string `mapstructure:"origins"`
}

type Kafka struct {
	Enable  bool     `mapstructure:"enable"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type ObjectStore struct {
	Endpoint string `mapstructure:"endpoint"`
}

type Reqlog struct {
	Buffer int `mapstructure:"buffer"`
	// Atomic switches the flat aggregate counters to HINCRBY updates.
	Atomic bool `mapstructure:"atomic"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc *OTEL) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Config struct {
	App    App       `mapstructure:"app"`
	Server Server    `mapstructure:"server"`
	DB     pg.Config `mapstructure:"db"`
	Redis  rd.Config `mapstructure:"redis"`
	Auth   Auth      `mapstructure:"auth"`
	CORS   CORS      `mapstructure:"cors"`
	// Bindings map backend names to remote base URLs; unbound names fall back
	// to the local handlers.
	Bindings    map[string]string `mapstructure:"bindings"`
	Kafka       Kafka             `mapstructure:"kafka"`
	ObjectStore ObjectStore       `mapstructure:"object_store"`
	Reqlog      Reqlog            `mapstructure:"reqlog"`
	OTEL        OTEL              `mapstructure:"otel"`
	Log         Log               `mapstructure:"log"`
}

func (c *Config) AsLoggerConfig() *obs.LogConfig {
	return &obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
}
