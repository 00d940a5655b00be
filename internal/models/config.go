package models

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Seed     int            `mapstructure:"seed"`
	Database DatabaseConfig `mapstructure:"database"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Export   ExportConfig   `mapstructure:"export"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

type KafkaConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	BrokerList       string `mapstructure:"broker_list"`
	VisitTopic       string `mapstructure:"visit_topic"`
	BatchTopic       string `mapstructure:"batch_topic"`
	SessionTimeoutMs int    `mapstructure:"session_timeout_ms"`
}

type CloudStorageConfig struct {
	Provider   string `mapstructure:"provider"`
	Region     string `mapstructure:"region"`
	BucketName string `mapstructure:"bucket_name"`
}

type ExportConfig struct {
	Format       string             `mapstructure:"format"` // parquet, csv, json or console
	Path         string             `mapstructure:"path"`
	Folder       string             `mapstructure:"folder"`
	Destination  string             `mapstructure:"destination"` // local or cloud
	CloudStorage CloudStorageConfig `mapstructure:"cloud_storage"`
}

// EngineConfig carries the tunable parameters of the scoring and
// redistribution heuristics. None of the thresholds has a documented
// business derivation, so all of them stay overridable.
type EngineConfig struct {
	FallbackCycleDays     float64       `mapstructure:"fallback_cycle_days"`
	LookbackDays          int           `mapstructure:"lookback_days"`
	MinPriority           float64       `mapstructure:"min_priority"`
	Strategy              string        `mapstructure:"strategy"`
	NewCustomerItemCount  int           `mapstructure:"new_customer_item_count"`
	NewCustomerQuantity   int           `mapstructure:"new_customer_quantity"`
	MaxRecipients         int           `mapstructure:"max_recipients"`
	RedistributionStepCap float64       `mapstructure:"redistribution_step_cap"`
	BenchmarkTopCustomers int           `mapstructure:"benchmark_top_customers"`
	Workers               int           `mapstructure:"workers"`
	GenerationTimeout     time.Duration `mapstructure:"generation_timeout"`
}

func setDefaults() {
	viper.SetDefault("engine.fallback_cycle_days", 30.0)
	viper.SetDefault("engine.lookback_days", 365)
	viper.SetDefault("engine.min_priority", 15.0)
	viper.SetDefault("engine.strategy", "balanced")
	viper.SetDefault("engine.new_customer_item_count", 5)
	viper.SetDefault("engine.new_customer_quantity", 5)
	viper.SetDefault("engine.max_recipients", 5)
	viper.SetDefault("engine.redistribution_step_cap", 0.5)
	viper.SetDefault("engine.benchmark_top_customers", 100)
	viper.SetDefault("engine.workers", 4)
	viper.SetDefault("engine.generation_timeout", 5*time.Minute)

	viper.SetDefault("export.format", "console")
	viper.SetDefault("export.destination", "local")
	viper.SetDefault("kafka.visit_topic", "van_visit_events")
	viper.SetDefault("kafka.batch_topic", "recommendation_batches")
	viper.SetDefault("database.sslmode", "disable")
}

// LoadConfig initializes and reads the configuration using Viper
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Default config location
		viper.AddConfigPath("examples")
		viper.SetConfigName("config")
		viper.SetConfigType("json")
	}

	viper.AutomaticEnv() // Read in environment variables that match
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	decoderConfigOption := viper.DecoderConfigOption(func(config *mapstructure.DecoderConfig) {
		config.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			config.DecodeHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToTimeDurationHookFunc(),
		)
	})
	if err := viper.Unmarshal(&config, decoderConfigOption); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}

	return &config, nil
}
