package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Data struct {
		TweetsCSV       string `yaml:"tweets_csv"`
		PricesDir       string `yaml:"prices_dir"`
		Source          string `yaml:"source" validate:"oneof=csv database"`
		SourceTimezone  string `yaml:"source_timezone" validate:"required,timezone"`
		DisplayTimezone string `yaml:"display_timezone" validate:"required,timezone"`
	} `yaml:"data"`
	Filter struct {
		Min          string `yaml:"min" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
		Max          string `yaml:"max" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
		TradingHours struct {
			Enabled  bool   `yaml:"enabled"`
			Timezone string `yaml:"timezone" validate:"omitempty,timezone"`
			Open     string `yaml:"open" validate:"omitempty,datetime=15:04"`
			Close    string `yaml:"close" validate:"omitempty,datetime=15:04"`
		} `yaml:"trading_hours"`
	} `yaml:"filter"`
	Labels struct {
		Horizon      int     `yaml:"horizon" validate:"gt=0"`
		ThresholdPct float64 `yaml:"threshold_pct" validate:"gte=0"`
	} `yaml:"labels"`
	Server struct {
		Addr       string `yaml:"addr" validate:"required"`
		PerPage    int    `yaml:"per_page" validate:"gt=0"`
		MaxPerPage int    `yaml:"max_per_page" validate:"gtefield=PerPage"`
	} `yaml:"server"`
	Database Database `yaml:"database"`
	Ingest   Ingest   `yaml:"ingest"`
	Export   struct {
		OutPath     string `yaml:"out_path"`
		PreviewPath string `yaml:"preview_path"`
		Format      string `yaml:"format" validate:"oneof=csv parquet json"`
	} `yaml:"export"`
}

// Database selects the gorm driver. DSN is built from the DB_* variables
// when empty.
type Database struct {
	Driver     string `yaml:"driver" validate:"oneof=postgres sqlite"`
	DSN        string `yaml:"dsn"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Ingest sizes the parallel CSV processing.
type Ingest struct {
	// One INSERT per batch; postgres caps a statement at 65535 parameters.
	BatchSize   int `yaml:"batch_size" validate:"gt=0,lte=5000"`
	WorkerCount int `yaml:"worker_count" validate:"gt=0"`
	FileWorkers int `yaml:"file_workers" validate:"gt=0"`
	BufferSize  int `yaml:"buffer_size" validate:"gt=0"`
}

const (
	DefaultBatchSize   = 2000
	DefaultWorkerCount = 8
	DefaultFileWorkers = 8
	DefaultBufferSize  = 256
)

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Data.TweetsCSV = getEnv("TWEETS_CSV", c.Data.TweetsCSV)
	c.Data.PricesDir = getEnv("PRICES_DIR", c.Data.PricesDir)
	c.Data.Source = getEnv("DATA_SOURCE", c.Data.Source)
	c.Data.SourceTimezone = getEnv("PRICES_SOURCE_TZ", c.Data.SourceTimezone)
	c.Data.DisplayTimezone = getEnv("DISPLAY_TZ", c.Data.DisplayTimezone)
	c.Filter.Min = getEnv("PRICES_MIN", c.Filter.Min)
	c.Filter.Max = getEnv("PRICES_MAX", c.Filter.Max)
	c.Labels.Horizon = getEnvInt("LABEL_HORIZON", c.Labels.Horizon)
	c.Labels.ThresholdPct = getEnvFloat("LABEL_THRESHOLD_PCT", c.Labels.ThresholdPct)
	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DB_DSN", c.Database.DSN)
	c.Database.SQLitePath = getEnv("SQLITE_PATH", c.Database.SQLitePath)
	c.Ingest.BatchSize = getEnvInt("BATCH_SIZE", c.Ingest.BatchSize)
	c.Ingest.WorkerCount = getEnvInt("WORKER_COUNT", c.Ingest.WorkerCount)
	c.Ingest.FileWorkers = getEnvInt("FILE_WORKERS", c.Ingest.FileWorkers)
	c.Ingest.BufferSize = getEnvInt("BUFFER_SIZE", c.Ingest.BufferSize)
}

func (c *Config) applyDefaults() {
	setDefault(&c.Data.TweetsCSV, "data/all_musk_posts.csv")
	setDefault(&c.Data.PricesDir, "data/TSLA_sorted")
	setDefault(&c.Data.Source, "csv")
	setDefault(&c.Data.SourceTimezone, "Europe/Warsaw")
	setDefault(&c.Data.DisplayTimezone, "Europe/Warsaw")
	setDefault(&c.Filter.Min, "2010-06-29T21:00:00Z")
	setDefault(&c.Filter.Max, "2025-03-07T20:54:00Z")
	if c.Filter.TradingHours.Enabled {
		setDefault(&c.Filter.TradingHours.Timezone, "America/New_York")
		setDefault(&c.Filter.TradingHours.Open, "09:30")
		setDefault(&c.Filter.TradingHours.Close, "16:00")
	}
	if c.Labels.Horizon == 0 {
		c.Labels.Horizon = 15
	}
	if c.Labels.ThresholdPct == 0 {
		c.Labels.ThresholdPct = 1.0
	}
	setDefault(&c.Server.Addr, ":8080")
	if c.Server.PerPage == 0 {
		c.Server.PerPage = 20
	}
	if c.Server.MaxPerPage == 0 {
		c.Server.MaxPerPage = 100
	}
	setDefault(&c.Database.Driver, "postgres")
	setDefault(&c.Database.SQLitePath, "data/tweetimpact.db")
	if c.Ingest.BatchSize == 0 {
		c.Ingest.BatchSize = DefaultBatchSize
	}
	if c.Ingest.WorkerCount == 0 {
		c.Ingest.WorkerCount = DefaultWorkerCount
	}
	if c.Ingest.FileWorkers == 0 {
		c.Ingest.FileWorkers = DefaultFileWorkers
	}
	if c.Ingest.BufferSize == 0 {
		c.Ingest.BufferSize = DefaultBufferSize
	}
	setDefault(&c.Export.OutPath, "data/tweet_impact_dataset.csv")
	setDefault(&c.Export.PreviewPath, "data/tweet_impact_dataset_preview.csv")
	setDefault(&c.Export.Format, "csv")
}

// Validate checks field constraints declared in the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if lo, hi := c.FilterMin(), c.FilterMax(); !lo.IsZero() && !hi.IsZero() && hi.Before(lo) {
		return fmt.Errorf("invalid config: filter.max %s is before filter.min %s", c.Filter.Max, c.Filter.Min)
	}
	return nil
}

// FilterMin returns the lower bound of the event time range, zero if unset.
func (c *Config) FilterMin() time.Time { return parseBound(c.Filter.Min) }

// FilterMax returns the upper bound of the event time range, zero if unset.
func (c *Config) FilterMax() time.Time { return parseBound(c.Filter.Max) }

// TradingWindow returns the open and close offsets since local midnight.
func (c *Config) TradingWindow() (opens, closes time.Duration, err error) {
	if opens, err = clockOffset(c.Filter.TradingHours.Open); err != nil {
		return 0, 0, fmt.Errorf("trading_hours.open: %w", err)
	}
	if closes, err = clockOffset(c.Filter.TradingHours.Close); err != nil {
		return 0, 0, fmt.Errorf("trading_hours.close: %w", err)
	}
	return opens, closes, nil
}

// PostgresDSN builds the connection string the same way for every command.
func (d Database) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "password"),
		getEnv("DB_NAME", "tweetimpact"))
}

func parseBound(s string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func clockOffset(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}
