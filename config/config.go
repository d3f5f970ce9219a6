// Package config loads the agentstream service configuration from an
// optional YAML file and the environment.
//
// Every key can be overridden with an AGENTSTREAM_ prefixed variable where
// dots become underscores (stream.grace_period is
// AGENTSTREAM_STREAM_GRACE_PERIOD). Provider keys, the backend location and
// the listen port also honor their conventional unprefixed names.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/engine"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/producer"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/stream"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AGENTSTREAM"

// Store drivers.
const (
	StoreMemory  = "memory"
	StoreMongo   = "mongo"
	StoreBackend = "backend"
)

type (
	// Config holds all configuration options for the service.
	Config struct {
		Server   ServerConfig   `mapstructure:"server"`
		Stream   StreamConfig   `mapstructure:"stream"`
		Producer ProducerConfig `mapstructure:"producer"`
		Agent    AgentConfig    `mapstructure:"agent"`
		Store    StoreConfig    `mapstructure:"store"`
		Pulse    PulseConfig    `mapstructure:"pulse"`
	}

	// ServerConfig configures the HTTP listener.
	ServerConfig struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		Debug           bool          `mapstructure:"debug"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		// AllowedOrigins lists the Origin values accepted on websocket
		// upgrades. Empty accepts any origin.
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	}

	// StreamConfig mirrors the stream.Coordinator options.
	StreamConfig struct {
		Capacity       int           `mapstructure:"capacity"`
		GracePeriod    time.Duration `mapstructure:"grace_period"`
		IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
		ReapInterval   time.Duration `mapstructure:"reap_interval"`
		MaxStreams     int           `mapstructure:"max_streams"`
		MaxSubscribers int           `mapstructure:"max_subscribers"`
	}

	// ProducerConfig configures the producer adapter.
	ProducerConfig struct {
		HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	}

	// AgentConfig selects the agent profile and provider credentials.
	AgentConfig struct {
		// ProfilePath points at a YAML agent profile. Empty uses the
		// built-in profile, which still requires SystemPromptFile.
		ProfilePath      string `mapstructure:"profile_path"`
		SystemPromptFile string `mapstructure:"system_prompt_file"`
		AnthropicAPIKey  string `mapstructure:"anthropic_api_key"`
		OpenAIAPIKey     string `mapstructure:"openai_api_key"`
	}

	// StoreConfig selects and configures the workflow record store.
	StoreConfig struct {
		Driver  string        `mapstructure:"driver"`
		Mongo   MongoConfig   `mapstructure:"mongo"`
		Backend BackendConfig `mapstructure:"backend"`
		Cache   CacheConfig   `mapstructure:"cache"`
	}

	// MongoConfig configures the Mongo store.
	MongoConfig struct {
		URI        string        `mapstructure:"uri"`
		Database   string        `mapstructure:"database"`
		Collection string        `mapstructure:"collection"`
		Timeout    time.Duration `mapstructure:"timeout"`
	}

	// BackendConfig configures the HTTP backend store.
	BackendConfig struct {
		URL     string        `mapstructure:"url"`
		APIKey  string        `mapstructure:"api_key"`
		Timeout time.Duration `mapstructure:"timeout"`
	}

	// CacheConfig configures the read-through record cache.
	CacheConfig struct {
		Enabled     bool          `mapstructure:"enabled"`
		TTL         time.Duration `mapstructure:"ttl"`
		TerminalTTL time.Duration `mapstructure:"terminal_ttl"`
	}

	// PulseConfig configures the Redis event mirror. The mirror is disabled
	// when RedisURL is empty.
	PulseConfig struct {
		RedisURL         string        `mapstructure:"redis_url"`
		StreamMaxLen     int           `mapstructure:"stream_max_len"`
		OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	}
)

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Stream: StreamConfig{
			Capacity:       stream.DefaultCapacity,
			GracePeriod:    stream.DefaultGracePeriod,
			IdleTimeout:    stream.DefaultIdleTimeout,
			ReapInterval:   stream.DefaultReapInterval,
			MaxStreams:     stream.DefaultMaxStreams,
			MaxSubscribers: stream.DefaultMaxSubscribers,
		},
		Producer: ProducerConfig{
			HeartbeatInterval: producer.DefaultHeartbeatInterval,
		},
		Agent: AgentConfig{
			SystemPromptFile: "prompts/communications_agent_system_prompt.md",
		},
		Store: StoreConfig{
			Driver: StoreMemory,
			Mongo: MongoConfig{
				Database:   "agentstream",
				Collection: "workflows",
				Timeout:    5 * time.Second,
			},
			Backend: BackendConfig{
				Timeout: 30 * time.Second,
			},
			Cache: CacheConfig{
				Enabled:     true,
				TTL:         5 * time.Second,
				TerminalTTL: 10 * time.Minute,
			},
		},
		Pulse: PulseConfig{
			StreamMaxLen:     1000,
			OperationTimeout: 2 * time.Second,
		},
	}
}

// unprefixed maps keys to the conventional environment names they also
// accept.
var unprefixed = map[string]string{
	"agent.anthropic_api_key": "ANTHROPIC_API_KEY",
	"agent.openai_api_key":    "OPENAI_API_KEY",
	"store.backend.url":       "BACKEND_URL",
	"store.backend.api_key":   "BACKEND_API_KEY",
	"server.port":             "PORT",
}

// Load reads the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range unprefixed {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults registers Defaults with v. Registering every key is what lets
// AutomaticEnv reach keys that appear in no config file.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.debug", d.Server.Debug)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("stream.capacity", d.Stream.Capacity)
	v.SetDefault("stream.grace_period", d.Stream.GracePeriod)
	v.SetDefault("stream.idle_timeout", d.Stream.IdleTimeout)
	v.SetDefault("stream.reap_interval", d.Stream.ReapInterval)
	v.SetDefault("stream.max_streams", d.Stream.MaxStreams)
	v.SetDefault("stream.max_subscribers", d.Stream.MaxSubscribers)

	v.SetDefault("producer.heartbeat_interval", d.Producer.HeartbeatInterval)

	v.SetDefault("agent.profile_path", d.Agent.ProfilePath)
	v.SetDefault("agent.system_prompt_file", d.Agent.SystemPromptFile)
	v.SetDefault("agent.anthropic_api_key", "")
	v.SetDefault("agent.openai_api_key", "")

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.mongo.uri", d.Store.Mongo.URI)
	v.SetDefault("store.mongo.database", d.Store.Mongo.Database)
	v.SetDefault("store.mongo.collection", d.Store.Mongo.Collection)
	v.SetDefault("store.mongo.timeout", d.Store.Mongo.Timeout)
	v.SetDefault("store.backend.url", d.Store.Backend.URL)
	v.SetDefault("store.backend.api_key", "")
	v.SetDefault("store.backend.timeout", d.Store.Backend.Timeout)
	v.SetDefault("store.cache.enabled", d.Store.Cache.Enabled)
	v.SetDefault("store.cache.ttl", d.Store.Cache.TTL)
	v.SetDefault("store.cache.terminal_ttl", d.Store.Cache.TerminalTTL)

	v.SetDefault("pulse.redis_url", d.Pulse.RedisURL)
	v.SetDefault("pulse.stream_max_len", d.Pulse.StreamMaxLen)
	v.SetDefault("pulse.operation_timeout", d.Pulse.OperationTimeout)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Stream.Capacity <= 0 {
		errs = append(errs, errors.New("stream.capacity must be positive"))
	}
	if c.Stream.GracePeriod < 0 {
		errs = append(errs, errors.New("stream.grace_period must not be negative"))
	}
	if c.Stream.IdleTimeout <= 0 {
		errs = append(errs, errors.New("stream.idle_timeout must be positive"))
	}
	if c.Stream.ReapInterval < 0 {
		errs = append(errs, errors.New("stream.reap_interval must not be negative"))
	}
	if c.Stream.MaxStreams < 0 || c.Stream.MaxSubscribers < 0 {
		errs = append(errs, errors.New("stream limits must not be negative"))
	}
	if c.Producer.HeartbeatInterval < 0 {
		errs = append(errs, errors.New("producer.heartbeat_interval must not be negative"))
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StoreMongo:
		if c.Store.Mongo.URI == "" {
			errs = append(errs, errors.New("store.mongo.uri is required for the mongo driver"))
		}
	case StoreBackend:
		if u, err := url.Parse(c.Store.Backend.URL); err != nil || !u.IsAbs() {
			errs = append(errs, fmt.Errorf("store.backend.url %q must be an absolute URL", c.Store.Backend.URL))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Store.Cache.Enabled && c.Store.Cache.TTL <= 0 {
		errs = append(errs, errors.New("store.cache.ttl must be positive when the cache is enabled"))
	}
	if c.Pulse.RedisURL != "" {
		if _, err := url.Parse(c.Pulse.RedisURL); err != nil {
			errs = append(errs, fmt.Errorf("pulse.redis_url: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Profile resolves the agent profile: the file at ProfilePath when set,
// otherwise the built-in profile pointed at SystemPromptFile.
func (c AgentConfig) Profile() (engine.Profile, error) {
	if c.ProfilePath != "" {
		return engine.LoadProfile(c.ProfilePath)
	}
	p := engine.DefaultProfile()
	p.SystemPromptFile = c.SystemPromptFile
	return p, p.Validate()
}

// APIKey returns the credential for provider.
func (c AgentConfig) APIKey(provider string) (string, error) {
	var key string
	switch provider {
	case "anthropic":
		key = c.AnthropicAPIKey
	case "openai":
		key = c.OpenAIAPIKey
	default:
		return "", fmt.Errorf("unsupported provider %q", provider)
	}
	if key == "" {
		return "", fmt.Errorf("%s API key is not configured", provider)
	}
	return key, nil
}
