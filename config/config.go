package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Dispatch DispatchConfig `yaml:"dispatch"`
	Region   RegionConfig   `yaml:"region"`
	Geo      GeoConfig      `yaml:"geo"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Autoplay AutoplayConfig `yaml:"autoplay"`
}

type DispatchConfig struct {
	HTTPAddr         string `yaml:"http_addr"`
	DSN              string `yaml:"dsn"`
	Language         string `yaml:"language"`
	PageSize         int    `yaml:"page_size"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms"`

	Warehouses int   `yaml:"warehouses"`
	Pickpoints int   `yaml:"pickpoints"`
	Seed       int64 `yaml:"seed"`
}

type RegionConfig struct {
	// BBox is min lng, min lat, max lng, max lat.
	BBox         []float64 `yaml:"bbox"`
	Zoom         int       `yaml:"zoom"`
	CurrencyRate float64   `yaml:"currency_rate"`
}

type GeoConfig struct {
	Provider string `yaml:"provider"` // "fake" | "http"
	APIKey   string `yaml:"api_key"`

	RouteURL     string `yaml:"route_url"`
	GeocodeURL   string `yaml:"geocode_url"`
	SuggestURL   string `yaml:"suggest_url"`
	IsochroneURL string `yaml:"isochrone_url"`
	MatrixURL    string `yaml:"matrix_url"`

	GeocodeTTLSeconds  int   `yaml:"geocode_ttl_seconds"`
	RateLimitPerMinute int64 `yaml:"rate_limit_per_minute"`
}

type KafkaConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	PublishOrderEvents bool   `yaml:"publish_order_events"`
	ConsumePositions   bool   `yaml:"consume_positions"`
	PositionsTopicName string `yaml:"positions_topic_name"`
	ConsumerGroup      string `yaml:"consumer_group"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type AutoplayConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	// TargetURL points the agents at a running dispatch-api; empty runs the
	// dispatcher in-process.
	TargetURL string `yaml:"target_url"`

	Drivers       *bool   `yaml:"drivers"`
	Orders        *bool   `yaml:"orders"`
	OrderAgents   int     `yaml:"order_agents"`
	SpeedKmPerMin float64 `yaml:"speed_km_per_min"`
	DelayMs       int     `yaml:"delay_ms"`
	StatsSchedule string  `yaml:"stats_schedule"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	if n := len(config.Region.BBox); n != 0 && n != 4 {
		return nil, fmt.Errorf("region.bbox needs 4 numbers, got %d", n)
	}

	return &config, nil
}
