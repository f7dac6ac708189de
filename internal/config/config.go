package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the lunch order system.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Payments PaymentsConfig `yaml:"payments"`
	Menu     MenuConfig     `yaml:"menu"`
}

// StorageConfig points at the JSON files backing the pending order,
// customer and address stores.
type StorageConfig struct {
	OrdersFile    string `yaml:"orders_file"`
	UsersFile     string `yaml:"users_file"`
	AddressesFile string `yaml:"addresses_file"`
}

// LedgerConfig selects the settlement ledger backend: "csv" (default)
// or "postgres".
type LedgerConfig struct {
	Backend string `yaml:"backend"`
	CSVFile string `yaml:"csv_file"`
}

// DatabaseConfig holds PostgreSQL connection configuration, used when
// the ledger backend is postgres.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// RabbitMQConfig holds RabbitMQ connection configuration.
type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// PaymentsConfig holds the card payment provider credentials and the
// reconciliation timings.
type PaymentsConfig struct {
	BaseURL             string `yaml:"base_url"`
	ShopID              string `yaml:"shop_id"`
	SecretKey           string `yaml:"secret_key"`
	ReturnURL           string `yaml:"return_url"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	TimeoutMinutes      int    `yaml:"timeout_minutes"`
}

// MenuConfig holds the published menu sheet location and the ordering
// window cutoff.
type MenuConfig struct {
	SheetURL   string `yaml:"sheet_url"`
	CutoffHour int    `yaml:"cutoff_hour"`
}

// Load reads configuration from a YAML file.
func Load(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	config := &Config{}
	scanner := bufio.NewScanner(file)

	var currentSection string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasSuffix(line, ":") && !strings.Contains(line, " ") {
			currentSection = strings.TrimSuffix(line, ":")
			continue
		}

		if strings.Contains(line, ":") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if err := config.setValue(currentSection, key, value); err != nil {
				return nil, fmt.Errorf("failed to set config value %s.%s: %w", currentSection, key, err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Storage.OrdersFile == "" {
		c.Storage.OrdersFile = "orders.json"
	}
	if c.Storage.UsersFile == "" {
		c.Storage.UsersFile = "users.json"
	}
	if c.Storage.AddressesFile == "" {
		c.Storage.AddressesFile = "addresses.json"
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "csv"
	}
	if c.Ledger.CSVFile == "" {
		c.Ledger.CSVFile = "orders_history.csv"
	}
	if c.Menu.CutoffHour == 0 {
		c.Menu.CutoffHour = 20
	}
	if c.Payments.PollIntervalSeconds == 0 {
		c.Payments.PollIntervalSeconds = 10
	}
	if c.Payments.TimeoutMinutes == 0 {
		c.Payments.TimeoutMinutes = 10
	}
}

func (c *Config) setValue(section, key, value string) error {
	switch section {
	case "storage":
		return c.setStorageValue(key, value)
	case "ledger":
		return c.setLedgerValue(key, value)
	case "database":
		return c.setDatabaseValue(key, value)
	case "rabbitmq":
		return c.setRabbitMQValue(key, value)
	case "payments":
		return c.setPaymentsValue(key, value)
	case "menu":
		return c.setMenuValue(key, value)
	default:
		return fmt.Errorf("unknown section: %s", section)
	}
}

func (c *Config) setStorageValue(key, value string) error {
	switch key {
	case "orders_file":
		c.Storage.OrdersFile = value
	case "users_file":
		c.Storage.UsersFile = value
	case "addresses_file":
		c.Storage.AddressesFile = value
	default:
		return fmt.Errorf("unknown storage key: %s", key)
	}
	return nil
}

func (c *Config) setLedgerValue(key, value string) error {
	switch key {
	case "backend":
		if value != "csv" && value != "postgres" {
			return fmt.Errorf("unknown ledger backend: %s", value)
		}
		c.Ledger.Backend = value
	case "csv_file":
		c.Ledger.CSVFile = value
	default:
		return fmt.Errorf("unknown ledger key: %s", key)
	}
	return nil
}

func (c *Config) setDatabaseValue(key, value string) error {
	switch key {
	case "host":
		c.Database.Host = value
	case "port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid port value: %w", err)
		}
		c.Database.Port = port
	case "user":
		c.Database.User = value
	case "password":
		c.Database.Password = value
	case "database":
		c.Database.Database = value
	default:
		return fmt.Errorf("unknown database key: %s", key)
	}
	return nil
}

func (c *Config) setRabbitMQValue(key, value string) error {
	switch key {
	case "host":
		c.RabbitMQ.Host = value
	case "port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid port value: %w", err)
		}
		c.RabbitMQ.Port = port
	case "user":
		c.RabbitMQ.User = value
	case "password":
		c.RabbitMQ.Password = value
	default:
		return fmt.Errorf("unknown rabbitmq key: %s", key)
	}
	return nil
}

func (c *Config) setPaymentsValue(key, value string) error {
	switch key {
	case "base_url":
		c.Payments.BaseURL = value
	case "shop_id":
		c.Payments.ShopID = value
	case "secret_key":
		c.Payments.SecretKey = value
	case "return_url":
		c.Payments.ReturnURL = value
	case "poll_interval_seconds":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid poll_interval_seconds value: %s", value)
		}
		c.Payments.PollIntervalSeconds = n
	case "timeout_minutes":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid timeout_minutes value: %s", value)
		}
		c.Payments.TimeoutMinutes = n
	default:
		return fmt.Errorf("unknown payments key: %s", key)
	}
	return nil
}

func (c *Config) setMenuValue(key, value string) error {
	switch key {
	case "sheet_url":
		c.Menu.SheetURL = value
	case "cutoff_hour":
		hour, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid cutoff_hour value: %w", err)
		}
		if hour < 0 || hour > 23 {
			return fmt.Errorf("cutoff_hour out of range: %d", hour)
		}
		c.Menu.CutoffHour = hour
	default:
		return fmt.Errorf("unknown menu key: %s", key)
	}
	return nil
}

// DatabaseURL returns a PostgreSQL connection URL.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database)
}

// RabbitMQURL returns an AMQP connection URL.
func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}
