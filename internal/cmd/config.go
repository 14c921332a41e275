package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mkthub/edi/internal/models"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Hub struct {
		SenderNumber string `yaml:"sender_number"`
		Format       string `yaml:"format"`
	} `yaml:"hub"`
	Scheduler struct {
		Workers          int   `yaml:"workers"`
		PollIntervalSecs int   `yaml:"poll_interval_secs"`
		BatchSize        int32 `yaml:"batch_size"`
	} `yaml:"scheduler"`
	Notify struct {
		URL              string `yaml:"url"`
		PollIntervalSecs int    `yaml:"poll_interval_secs"`
	} `yaml:"notify"`
	Retention struct {
		IntervalMins      int `yaml:"interval_mins"`
		CommandMaxAgeDays int `yaml:"command_max_age_days"`
	} `yaml:"retention"`
	Storage struct {
		Root string `yaml:"root"`
	} `yaml:"storage"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&config)
	return &config, nil
}

func defaultConfig() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.Server.Port == "" {
		config.Server.Port = getEnv("PORT", "8080")
	}
	if config.Hub.SenderNumber == "" {
		config.Hub.SenderNumber = getEnv("HUB_SENDER_NUMBER", "5790001330552")
	}
	if config.Hub.Format == "" {
		config.Hub.Format = getEnv("HUB_DOCUMENT_FORMAT", string(models.FormatCIMXML))
	}
	if config.Scheduler.Workers == 0 {
		config.Scheduler.Workers = getEnvAsInt("SCHEDULER_WORKERS", 2)
	}
	if config.Scheduler.PollIntervalSecs == 0 {
		config.Scheduler.PollIntervalSecs = 5
	}
	if config.Scheduler.BatchSize == 0 {
		config.Scheduler.BatchSize = 100
	}
	if config.Notify.URL == "" {
		config.Notify.URL = getEnv("NATS_URL", "nats://localhost:4222")
	}
	if config.Notify.PollIntervalSecs == 0 {
		config.Notify.PollIntervalSecs = 10
	}
	if config.Retention.IntervalMins == 0 {
		config.Retention.IntervalMins = 60
	}
	if config.Retention.CommandMaxAgeDays == 0 {
		config.Retention.CommandMaxAgeDays = 30
	}
	if config.Storage.Root == "" {
		config.Storage.Root = getEnv("STORAGE_ROOT", "./data/documents")
	}
}

func (c *Config) schedulerPollInterval() time.Duration {
	return time.Duration(c.Scheduler.PollIntervalSecs) * time.Second
}

func (c *Config) notifyPollInterval() time.Duration {
	return time.Duration(c.Notify.PollIntervalSecs) * time.Second
}

func (c *Config) retentionInterval() time.Duration {
	return time.Duration(c.Retention.IntervalMins) * time.Minute
}

func (c *Config) commandMaxAge() time.Duration {
	return time.Duration(c.Retention.CommandMaxAgeDays) * 24 * time.Hour
}

func (c *Config) documentFormat() (models.DocumentFormat, error) {
	format := models.DocumentFormat(c.Hub.Format)
	if !format.Valid() {
		return "", fmt.Errorf("invalid document format %q", c.Hub.Format)
	}
	return format, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
