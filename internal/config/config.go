package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/enterprise/cvm-trust-verifier/internal/evidence"
)

// Config represents the verifier configuration.
type Config struct {
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Service   ServiceConfig   `mapstructure:"service"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Reference ReferenceConfig `mapstructure:"reference"`
	Evidence  EvidenceConfig  `mapstructure:"evidence"`
	Output    OutputConfig    `mapstructure:"output"`
	Instance  InstanceConfig  `mapstructure:"instance"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// GatewayConfig locates the attestation-service gateway.
type GatewayConfig struct {
	Host    string        `mapstructure:"host"`
	Port    int           `mapstructure:"port"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// BaseURL returns the gateway base URL.
func (g GatewayConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", g.Host, g.Port)
}

// ServiceConfig controls trust service startup polling.
type ServiceConfig struct {
	Name          string        `mapstructure:"name"`
	StartRetries  int           `mapstructure:"start_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// PolicyConfig identifies the evaluation policy.
type PolicyConfig struct {
	ID   string `mapstructure:"id"`
	Path string `mapstructure:"path"`
	Dir  string `mapstructure:"dir"`
}

// ReferenceConfig controls measurement extraction.
type ReferenceConfig struct {
	ImagePath string `mapstructure:"image_path"`
	DigestAlg string `mapstructure:"digest_alg"`
}

// EvidenceConfig locates the evidence document.
type EvidenceConfig struct {
	Path string `mapstructure:"path"`
}

// OutputConfig controls artifact persistence.
type OutputConfig struct {
	Dir     string `mapstructure:"dir"`
	Verbose bool   `mapstructure:"verbose"`
}

// InstanceConfig carries optional instance identity forwarded to the
// gateway in the AAInstanceInfo header.
type InstanceConfig struct {
	ImageID        string `mapstructure:"image_id"`
	InstanceID     string `mapstructure:"instance_id"`
	InstanceName   string `mapstructure:"instance_name"`
	OwnerAccountID string `mapstructure:"owner_account_id"`
}

// Empty reports whether no instance identity was configured.
func (i InstanceConfig) Empty() bool {
	return i.ImageID == "" && i.InstanceID == "" && i.InstanceName == "" && i.OwnerAccountID == ""
}

// LoggingConfig controls the logrus logger.
type LoggingConfig struct {
	Level        string `mapstructure:"level"`
	Format       string `mapstructure:"format"`
	Output       string `mapstructure:"output"`
	FileRotation bool   `mapstructure:"file_rotation"`
	MaxSize      int    `mapstructure:"max_size"`
	MaxBackups   int    `mapstructure:"max_backups"`
	MaxAge       int    `mapstructure:"max_age"`
}

// Load loads configuration from file. An empty path loads defaults and
// environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	bindEnv(v)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}

	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway timeout must be positive")
	}

	if c.Service.StartRetries < 1 {
		return fmt.Errorf("service start retries must be at least 1")
	}

	if c.Policy.ID == "" {
		return fmt.Errorf("policy ID is required")
	}

	if !evidence.SupportedAlg(c.Reference.DigestAlg) {
		return fmt.Errorf("unsupported digest algorithm: %s", c.Reference.DigestAlg)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	// Gateway defaults
	v.SetDefault("gateway.host", "localhost")
	v.SetDefault("gateway.port", 8081)
	v.SetDefault("gateway.timeout", "30s")

	// Service defaults
	v.SetDefault("service.name", "trustiflux")
	v.SetDefault("service.start_retries", 5)
	v.SetDefault("service.retry_interval", "2s")

	// Policy defaults
	v.SetDefault("policy.id", "tapp")
	v.SetDefault("policy.dir", "/opt/attestation/policies")

	// Reference defaults
	v.SetDefault("reference.digest_alg", "sha384")

	// Evidence defaults
	v.SetDefault("evidence.path", "evidence.json")

	// Output defaults
	v.SetDefault("output.dir", ".")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
}

// bindEnv keeps the environment variable names of the legacy verification
// tooling working.
func bindEnv(v *viper.Viper) {
	v.BindEnv("policy.id", "POLICY_ID")
	v.BindEnv("instance.image_id", "IMAGE_ID")
	v.BindEnv("instance.instance_id", "INSTANCE_ID")
	v.BindEnv("instance.instance_name", "INSTANCE_NAME")
	v.BindEnv("instance.owner_account_id", "OWNER_ACCOUNT_ID")
}
