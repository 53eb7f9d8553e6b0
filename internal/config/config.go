package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "PE"

type Config struct {
	Environment string         `mapstructure:"environment"`
	HTTP        HTTPConfig     `mapstructure:"http"`
	Log         LogConfig      `mapstructure:"log"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Auth        AuthConfig     `mapstructure:"auth"`
	OCR         OCRConfig      `mapstructure:"ocr"`
	AWS         AWSConfig      `mapstructure:"aws"`
	Source      SourceConfig   `mapstructure:"source"`
	Alert       AlertConfig    `mapstructure:"alert"`
	Plates      PlatesConfig   `mapstructure:"plates"`
	Permits     PermitsConfig  `mapstructure:"permits"`
	Pipeline    PipelineConfig `mapstructure:"pipeline"`
}

type HTTPConfig struct {
	Port            string        `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	MaxImageBytes   int64         `mapstructure:"max_image_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a libpq style connection string.
func (s StorageConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		s.Host, s.Port, s.User, s.Password, s.Name, s.SSLMode)
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type OCRConfig struct {
	// Provider is "azure", "rekognition" or "tesseract".
	Provider  string          `mapstructure:"provider"`
	Azure     AzureOCRConfig  `mapstructure:"azure"`
	Tesseract TesseractConfig `mapstructure:"tesseract"`
}

type AzureOCRConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Key      string        `mapstructure:"key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type TesseractConfig struct {
	Languages []string `mapstructure:"languages"`
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
}

type SourceConfig struct {
	SQSQueueURL string `mapstructure:"sqs_queue_url"`
	WatchDir    string `mapstructure:"watch_dir"`
}

type AlertConfig struct {
	// Channels lists the enabled dispatchers: log, email, iot, websocket.
	Channels    []string `mapstructure:"channels"`
	Sender      string   `mapstructure:"sender"`
	Recipients  []string `mapstructure:"recipients"`
	IoTTopic    string   `mapstructure:"iot_topic"`
	IoTEndpoint string   `mapstructure:"iot_endpoint"`
}

type PlatesConfig struct {
	FoldCase bool `mapstructure:"fold_case"`
}

type PermitsConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// Location resolves Timezone; Validate guarantees it loads.
func (p PermitsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type PipelineConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.port", "8080")
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("http.max_image_bytes", 10<<20)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.host", "localhost")
	v.SetDefault("storage.port", 5432)
	v.SetDefault("storage.user", "postgres")
	v.SetDefault("storage.password", "")
	v.SetDefault("storage.name", "permits")
	v.SetDefault("storage.sslmode", "disable")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("ocr.provider", "azure")
	v.SetDefault("ocr.azure.endpoint", "")
	v.SetDefault("ocr.azure.key", "")
	v.SetDefault("ocr.azure.timeout", 30*time.Second)
	v.SetDefault("ocr.tesseract.languages", []string{"eng"})

	v.SetDefault("aws.region", "eu-west-2")

	v.SetDefault("source.sqs_queue_url", "")
	v.SetDefault("source.watch_dir", "")

	v.SetDefault("alert.channels", []string{"log"})
	v.SetDefault("alert.sender", "")
	v.SetDefault("alert.recipients", []string{})
	v.SetDefault("alert.iot_topic", "parking/violations")
	v.SetDefault("alert.iot_endpoint", "")

	v.SetDefault("plates.fold_case", true)
	v.SetDefault("permits.timezone", "UTC")
	v.SetDefault("pipeline.concurrency", 1)
}

// Load reads configuration from defaults, an optional file and the environment.
// Environment keys use the PE_ prefix, e.g. PE_OCR_AZURE_KEY.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Alert.Channels = splitList(cfg.Alert.Channels)
	cfg.Alert.Recipients = splitList(cfg.Alert.Recipients)
	cfg.HTTP.AllowedOrigins = splitList(cfg.HTTP.AllowedOrigins)
	cfg.OCR.Tesseract.Languages = splitList(cfg.OCR.Tesseract.Languages)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitList flattens comma separated env values ("a,b") into separate entries.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unsupported %q", c.Storage.Driver))
	}

	switch c.OCR.Provider {
	case "azure":
		if c.OCR.Azure.Endpoint == "" || c.OCR.Azure.Key == "" {
			errs = append(errs, errors.New("ocr.azure: endpoint and key are required"))
		}
	case "rekognition", "tesseract":
	default:
		errs = append(errs, fmt.Errorf("ocr.provider: unsupported %q", c.OCR.Provider))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}

	if len(c.Alert.Channels) == 0 {
		errs = append(errs, errors.New("alert.channels: at least one channel is required"))
	}
	for _, ch := range c.Alert.Channels {
		switch ch {
		case "log", "websocket":
		case "email":
			if c.Alert.Sender == "" || len(c.Alert.Recipients) == 0 {
				errs = append(errs, errors.New("alert.email: sender and recipients are required"))
			}
		case "iot":
			if c.Alert.IoTTopic == "" {
				errs = append(errs, errors.New("alert.iot_topic is required"))
			}
		default:
			errs = append(errs, fmt.Errorf("alert.channels: unsupported %q", ch))
		}
	}

	if _, err := time.LoadLocation(c.Permits.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("permits.timezone: %w", err))
	}

	if c.Pipeline.Concurrency < 1 {
		errs = append(errs, errors.New("pipeline.concurrency must be >= 1"))
	}

	return errors.Join(errs...)
}
