package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Host configuration
	DataDir string `mapstructure:"datadir"`
	RPCPort int    `mapstructure:"rpcport"`
	RPCAddr string `mapstructure:"rpcaddr"`

	// Solver configuration
	SolverPath         string `mapstructure:"solver_path"`
	PublisherPublicKey string `mapstructure:"publisher_public_key"`

	// Regulator tunables. These are validated here but not passed to the
	// consensus regulator, which uses the consensus package defaults
	// overridden by on-chain settings.
	ExpectedBlockInterval          int `mapstructure:"expected_block_interval"`
	DifficultyAdjustmentBlockCount int `mapstructure:"difficulty_adjustment_block_count"`
	DifficultyTuningBlockCount     int `mapstructure:"difficulty_tuning_block_count"`

	// Database configuration
	Cache   int `mapstructure:"cache"`
	Handles int `mapstructure:"handles"`

	// Logging configuration
	Verbosity int `mapstructure:"verbosity"`

	// Security configuration
	EnableRateLimit bool          `mapstructure:"enable_rate_limit"`
	RateLimit       int           `mapstructure:"rate_limit"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`

	// Performance configuration
	EnableCache       bool          `mapstructure:"enable_cache"`
	CacheSize         int           `mapstructure:"cache_size"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`

	// Health check configuration
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	EnableMetrics       bool          `mapstructure:"enable_metrics"`
}

var defaultConfig = Config{
	DataDir:                        "./data",
	RPCPort:                        8545,
	RPCAddr:                        "127.0.0.1",
	SolverPath:                     "powsolver",
	PublisherPublicKey:             "",
	ExpectedBlockInterval:          60,
	DifficultyAdjustmentBlockCount: 10,
	DifficultyTuningBlockCount:     100,
	Cache:                          256,
	Handles:                        256,
	Verbosity:                      3,
	EnableRateLimit:                true,
	RateLimit:                      100,
	RateLimitWindow:                time.Minute,
	EnableCache:                    true,
	CacheSize:                      1000,
	ConnectionTimeout:              30 * time.Second,
	HealthCheckInterval:            30 * time.Second,
	EnableMetrics:                  true,
}

func LoadConfig(configPath string) (*Config, error) {
	config := defaultConfig

	if configPath != "" {
		// Set config file path
		viper.SetConfigFile(configPath)
	} else {
		// Search for config in working directory and home directory
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.powconsensusd")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("POWCONSENSUS")
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
		// Config file not found, use defaults
	}

	// Unmarshal config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}

	// Validate and create directories
	if err := validateAndCreateDirs(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %v", err)
	}

	return &config, nil
}

func validateAndCreateDirs(config *Config) error {
	// Create data directory if it doesn't exist
	if err := os.MkdirAll(config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %v", err)
	}

	// Create chaindata subdirectory
	chaindataDir := filepath.Join(config.DataDir, "chaindata")
	if err := os.MkdirAll(chaindataDir, 0755); err != nil {
		return fmt.Errorf("failed to create chaindata directory: %v", err)
	}

	// Validate RPC port
	if config.RPCPort <= 0 || config.RPCPort > 65535 {
		return fmt.Errorf("invalid RPC port: %d", config.RPCPort)
	}

	if config.SolverPath == "" {
		return fmt.Errorf("solver_path must not be empty")
	}

	// Validate regulator tunables
	if config.ExpectedBlockInterval <= 0 {
		config.ExpectedBlockInterval = defaultConfig.ExpectedBlockInterval
	}

	if config.DifficultyAdjustmentBlockCount <= 0 {
		config.DifficultyAdjustmentBlockCount = defaultConfig.DifficultyAdjustmentBlockCount
	}

	if config.DifficultyTuningBlockCount <= 0 {
		config.DifficultyTuningBlockCount = defaultConfig.DifficultyTuningBlockCount
	}

	if config.Cache <= 0 {
		config.Cache = 256
	}

	if config.Handles <= 0 {
		config.Handles = 256
	}

	return nil
}

func (c *Config) GetLogLevel() int {
	switch c.Verbosity {
	case 0:
		return 5 // Fatal
	case 1:
		return 4 // Error
	case 2:
		return 3 // Warning
	case 3:
		return 2 // Info
	case 4:
		return 1 // Debug
	default:
		return 2 // Info
	}
}

func (c *Config) GetDataSubDir(subdir string) string {
	return filepath.Join(c.DataDir, subdir)
}
