package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/sirosfoundation/go-bundle-host/pkg/logging"
)

const (
	// EnvPrefix is the prefix of every environment override, e.g. BUNDLE_SERVER_PORT.
	// Field names are split into words, so Shutdown.TimeoutSeconds is read from
	// BUNDLE_SHUTDOWN_TIMEOUT_SECONDS. Unprefixed variables are never consulted.
	EnvPrefix = "BUNDLE"

	// DefaultPort is used when neither a flag, the descriptor nor a bundled
	// properties resource names a listen port.
	DefaultPort = 8080

	// DefaultStopKey is the shared shutdown secret when -stopKey is not given.
	DefaultStopKey = "SHUTDOWN"

	// DefaultStopTimeout bounds the shutdown handshake.
	DefaultStopTimeout = 30
)

// Config is the process-wide configuration record. It is built once from
// defaults, the server descriptor, the environment and command line flags
// and is read-only afterwards.
type Config struct {
	Server   ServerConfig   `yaml:"server" split_words:"true"`
	Shutdown ShutdownConfig `yaml:"shutdown" split_words:"true"`
	Paths    PathsConfig    `yaml:"paths" split_words:"true"`
	Artifact ArtifactConfig `yaml:"artifact" split_words:"true"`
	Logging  logging.Config `yaml:"logging" split_words:"true"`
	CORS     CORSConfig     `yaml:"cors" split_words:"true"`
	Metrics  MetricsConfig  `yaml:"metrics" split_words:"true"`

	// AppHome is published to the modules; empty means the working directory.
	AppHome string `yaml:"app_home" split_words:"true"`

	// EnvPath is the environment-resource descriptor given with -jettyEnvPath.
	EnvPath string `yaml:"-" ignored:"true"`
	// ConfPath is the server descriptor given with -jettyConfPath.
	ConfPath string `yaml:"-" ignored:"true"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host" split_words:"true"`
	// Port is the listen port; 0 means "take it from the bundled properties"
	// unless PortExplicit is set.
	Port int `yaml:"port" split_words:"true"`
	// PortExplicit marks Port as given on the command line, so 0 binds an
	// ephemeral port instead.
	PortExplicit bool `yaml:"-" ignored:"true"`

	AdminPort  int    `yaml:"admin_port" split_words:"true"`  // Admin API port (0 to disable)
	AdminToken string `yaml:"admin_token" split_words:"true"` // Bearer token for admin API (auto-generated if empty)

	AdminRateLimit AttemptLimitConfig `yaml:"admin_rate_limit" split_words:"true"`

	ReadTimeout     int `yaml:"read_timeout" split_words:"true"`     // seconds
	WriteTimeout    int `yaml:"write_timeout" split_words:"true"`    // seconds
	IdleTimeout     int `yaml:"idle_timeout" split_words:"true"`     // seconds
	ShutdownTimeout int `yaml:"shutdown_timeout" split_words:"true"` // seconds
}

// AttemptLimitConfig limits failed admin authentication attempts per client.
type AttemptLimitConfig struct {
	Enabled        bool `yaml:"enabled" split_words:"true"`
	MaxAttempts    int  `yaml:"max_attempts" split_words:"true"`
	WindowSeconds  int  `yaml:"window_seconds" split_words:"true"`
	LockoutSeconds int  `yaml:"lockout_seconds" split_words:"true"`
}

// SetDefaults fills unset limits.
func (c *AttemptLimitConfig) SetDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = 60
	}
	if c.LockoutSeconds <= 0 {
		c.LockoutSeconds = 300
	}
}

// ShutdownConfig configures the stop monitor and the stop client.
type ShutdownConfig struct {
	// Port enables the stop monitor when positive.
	Port int    `yaml:"port" split_words:"true"`
	Key  string `yaml:"key" split_words:"true"`
	// TimeoutSeconds bounds the client side of the handshake.
	TimeoutSeconds int `yaml:"timeout" split_words:"true"`
}

// PathsConfig holds explicit context path overrides. Empty means "derive".
type PathsConfig struct {
	Context string `yaml:"context" split_words:"true"`
	Front   string `yaml:"front" split_words:"true"`
	Portal  string `yaml:"portal" split_words:"true"`
}

// ArtifactConfig locates the bundle.
type ArtifactConfig struct {
	// Path is a zip archive or a directory; empty means the running executable.
	Path string `yaml:"path" split_words:"true"`
}

// CORSConfig is applied to the Core and Web modules.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins" split_words:"true"`
	AllowedMethods   []string `yaml:"allowed_methods" split_words:"true"`
	AllowedHeaders   []string `yaml:"allowed_headers" split_words:"true"`
	ExposedHeaders   []string `yaml:"exposed_headers" split_words:"true"`
	AllowCredentials bool     `yaml:"allow_credentials" split_words:"true"`
	MaxAge           int      `yaml:"max_age" split_words:"true"` // seconds
}

// MetricsConfig toggles request metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" split_words:"true"`
}

// Load builds a Config from defaults, an optional server descriptor
// (YAML, may be nil) and BUNDLE_* environment variables. It does not
// validate: command line flags are applied by the caller first.
func Load(descriptor []byte) (*Config, error) {
	cfg := Default()

	if len(descriptor) > 0 {
		if err := yaml.Unmarshal(descriptor, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse server descriptor: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	return cfg, nil
}

// ReadDescriptor reads a server descriptor file. An explicitly named
// descriptor must exist.
func ReadDescriptor(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read server descriptor: %w", err)
	}
	return data, nil
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			ReadTimeout:     15,
			WriteTimeout:    15,
			IdleTimeout:     60,
			ShutdownTimeout: 30,
			AdminRateLimit: AttemptLimitConfig{
				Enabled:        true,
				MaxAttempts:    10,
				WindowSeconds:  60,
				LockoutSeconds: 300,
			},
		},
		Shutdown: ShutdownConfig{
			Port:           -1,
			Key:            DefaultStopKey,
			TimeoutSeconds: DefaultStopTimeout,
		},
		Logging: logging.DefaultConfig(),
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         12 * 60 * 60,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.AdminPort < 0 || c.Server.AdminPort > 65535 {
		return fmt.Errorf("invalid admin port: %d", c.Server.AdminPort)
	}

	if c.Shutdown.Port > 65535 {
		return fmt.Errorf("invalid stop port: %d", c.Shutdown.Port)
	}

	if c.Shutdown.Port > 0 && (c.Shutdown.Port == c.Server.Port || c.Shutdown.Port == c.Server.AdminPort) {
		return fmt.Errorf("stop port %d collides with a server port", c.Shutdown.Port)
	}

	if c.Shutdown.Key == "" {
		return fmt.Errorf("stop key is required")
	}

	if c.Shutdown.TimeoutSeconds <= 0 {
		return fmt.Errorf("invalid stop timeout: %d", c.Shutdown.TimeoutSeconds)
	}

	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.IdleTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}

	if err := c.Logging.Validate(); err != nil {
		return err
	}

	return nil
}

// Address returns the listen address for the given port
func (c *ServerConfig) Address(port int) string {
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// AdminAddress returns the admin server address
func (c *ServerConfig) AdminAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.AdminPort)
}

// StopTimeout returns the handshake timeout as a duration.
func (c *ShutdownConfig) StopTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Enabled reports whether the stop monitor should run.
func (c *ShutdownConfig) Enabled() bool {
	return c.Port > 0
}
