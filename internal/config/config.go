// Package config loads the node's YAML configuration, layers ANSILO_*
// environment variables on top, applies defaults, and supports
// fsnotify-based hot reload — adapted from the teacher's own
// internal/config package with tenants replaced by data sources and
// entities.
package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the top-level node configuration.
type Config struct {
	Node        NodeConfig              `yaml:"node"`
	Listen      ListenConfig            `yaml:"listen"`
	Defaults    PoolDefaults            `yaml:"defaults"`
	DataSources map[string]DataSourceConfig `yaml:"data_sources"`
	Entities    []EntityConfig          `yaml:"entities"`
	FDWBridge   FDWBridgeConfig         `yaml:"fdw_bridge"`
	Auth        AuthConfig              `yaml:"auth"`
}

// NodeConfig identifies this node and its environment overlay. Fields
// here are the ones spec.md §6 calls out as "external collaborator"
// environment concerns: node name, bind address, TLS paths, JDBC
// classpath.
type NodeConfig struct {
	Name          string `yaml:"name" env:"ANSILO_NODE_NAME"`
	BindAddress   string `yaml:"bind_address" env:"ANSILO_BIND_ADDRESS"`
	TLSCert       string `yaml:"tls_cert" env:"ANSILO_TLS_CERT"`
	TLSKey        string `yaml:"tls_key" env:"ANSILO_TLS_KEY"`
	JDBCClasspath string `yaml:"jdbc_classpath" env:"ANSILO_JDBC_CLASSPATH"`
}

// ListenConfig defines the ports Ansilo listens on.
type ListenConfig struct {
	PostgresPort int    `yaml:"postgres_port" env:"ANSILO_POSTGRES_PORT"`
	APIPort      int    `yaml:"api_port" env:"ANSILO_API_PORT"`
	APIBind      string `yaml:"api_bind" env:"ANSILO_API_BIND"`
	APIKey       string `yaml:"api_key" env:"ANSILO_API_KEY"`
}

func (lc ListenConfig) TLSEnabled(n NodeConfig) bool {
	return n.TLSCert != "" && n.TLSKey != ""
}

// PoolDefaults are applied when a data source config doesn't override
// them (spec.md glossary: Connection Pool's min/max size, idle/connect
// timeouts).
type PoolDefaults struct {
	MinConnections int           `yaml:"min_connections"`
	MaxConnections int           `yaml:"max_connections"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxLifetime    time.Duration `yaml:"max_lifetime"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// DataSourceConfig is one entry of the data_sources map: connector type
// plus its connection options and optional per-source pool overrides.
type DataSourceConfig struct {
	Type           string            `yaml:"type"`
	Options        map[string]string `yaml:"options"`
	MinConnections *int              `yaml:"min_connections,omitempty"`
	MaxConnections *int              `yaml:"max_connections,omitempty"`
	ConnectTimeout *time.Duration    `yaml:"connect_timeout,omitempty"`
	IdleTimeout    *time.Duration    `yaml:"idle_timeout,omitempty"`
	MaxLifetime    *time.Duration    `yaml:"max_lifetime,omitempty"`
	AcquireTimeout *time.Duration    `yaml:"acquire_timeout,omitempty"`
}

func (d DataSourceConfig) EffectiveMinConnections(defaults PoolDefaults) int {
	if d.MinConnections != nil {
		return *d.MinConnections
	}
	return defaults.MinConnections
}

func (d DataSourceConfig) EffectiveMaxConnections(defaults PoolDefaults) int {
	if d.MaxConnections != nil {
		return *d.MaxConnections
	}
	return defaults.MaxConnections
}

func (d DataSourceConfig) EffectiveConnectTimeout(defaults PoolDefaults) time.Duration {
	if d.ConnectTimeout != nil {
		return *d.ConnectTimeout
	}
	return defaults.ConnectTimeout
}

func (d DataSourceConfig) EffectiveIdleTimeout(defaults PoolDefaults) time.Duration {
	if d.IdleTimeout != nil {
		return *d.IdleTimeout
	}
	return defaults.IdleTimeout
}

func (d DataSourceConfig) EffectiveMaxLifetime(defaults PoolDefaults) time.Duration {
	if d.MaxLifetime != nil {
		return *d.MaxLifetime
	}
	return defaults.MaxLifetime
}

func (d DataSourceConfig) EffectiveAcquireTimeout(defaults PoolDefaults) time.Duration {
	if d.AcquireTimeout != nil {
		return *d.AcquireTimeout
	}
	return defaults.AcquireTimeout
}

// Redacted returns a copy of the DataSourceConfig with any option key
// that looks like a credential masked, the same idea as the teacher's
// TenantConfig.Redacted but generalised from a single Password field to
// an arbitrary options bag.
func (d DataSourceConfig) Redacted() DataSourceConfig {
	c := d
	c.Options = make(map[string]string, len(d.Options))
	for k, v := range d.Options {
		if isSecretOptionKey(k) {
			c.Options[k] = "***REDACTED***"
		} else {
			c.Options[k] = v
		}
	}
	return c
}

func isSecretOptionKey(key string) bool {
	switch key {
	case "password", "secret", "token", "api_key", "private_key":
		return true
	default:
		return false
	}
}

// EntityConfig is the YAML shape of catalog.Entity before it is
// resolved against DataSources and validated.
type EntityConfig struct {
	ID          string                    `yaml:"id"`
	Name        string                    `yaml:"name"`
	Description string                    `yaml:"description"`
	Tags        []string                  `yaml:"tags"`
	Attributes  []EntityAttributeConfig   `yaml:"attributes"`
	Constraints []EntityConstraintConfig  `yaml:"constraints"`
	Source      EntitySourceConfig        `yaml:"source"`
}

type EntityAttributeConfig struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Nullable    bool   `yaml:"nullable"`
	PrimaryKey  bool   `yaml:"primary_key"`
	Description string `yaml:"description"`
}

type EntityConstraintConfig struct {
	Kind    string   `yaml:"kind"`
	Columns []string `yaml:"columns"`
}

type EntitySourceConfig struct {
	DataSourceID string            `yaml:"data_source_id"`
	Options      map[string]string `yaml:"options"`
}

// FDWBridgeConfig configures the local Unix-domain-socket bridge server
// (spec.md §4.F/§6).
type FDWBridgeConfig struct {
	SocketPath        string        `yaml:"socket_path" env:"ANSILO_FDW_SOCKET"`
	CancelGracePeriod time.Duration `yaml:"cancel_grace_period"`
}

// AuthConfig configures JWT verification and the optional Redis token
// cache (spec.md §4.G, SPEC_FULL component G).
type AuthConfig struct {
	JWTIssuer    string `yaml:"jwt_issuer"`
	JWTAudience  string `yaml:"jwt_audience"`
	JWTPublicKey string `yaml:"jwt_public_key_path"`
	RedisAddr    string `yaml:"redis_addr" env:"ANSILO_REDIS_ADDR"`
	ServiceUsers []ServiceUserConfig `yaml:"service_users"`
}

// ServiceUserConfig names a pre-provisioned identity that bypasses
// passthrough authentication (spec.md §4.G).
type ServiceUserConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment
// variable values, leaving unmatched patterns untouched.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file with env var substitution,
// then layers ANSILO_* environment variables over the NodeConfig,
// ListenConfig and FDWBridge/AuthConfig env-tagged fields via
// caarlos0/env.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := env.Parse(&cfg.Node); err != nil {
		return nil, fmt.Errorf("applying node env overlay: %w", err)
	}
	if err := env.Parse(&cfg.Listen); err != nil {
		return nil, fmt.Errorf("applying listen env overlay: %w", err)
	}
	if err := env.Parse(&cfg.FDWBridge); err != nil {
		return nil, fmt.Errorf("applying fdw bridge env overlay: %w", err)
	}
	if err := env.Parse(&cfg.Auth); err != nil {
		return nil, fmt.Errorf("applying auth env overlay: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen.PostgresPort == 0 {
		cfg.Listen.PostgresPort = 5432
	}
	if cfg.Listen.APIPort == 0 {
		cfg.Listen.APIPort = 8080
	}
	if cfg.Listen.APIBind == "" {
		cfg.Listen.APIBind = "127.0.0.1"
	}
	if cfg.Defaults.MinConnections == 0 {
		cfg.Defaults.MinConnections = 1
	}
	if cfg.Defaults.MaxConnections == 0 {
		cfg.Defaults.MaxConnections = 10
	}
	if cfg.Defaults.ConnectTimeout == 0 {
		cfg.Defaults.ConnectTimeout = 10 * time.Second
	}
	if cfg.Defaults.IdleTimeout == 0 {
		cfg.Defaults.IdleTimeout = 5 * time.Minute
	}
	if cfg.Defaults.MaxLifetime == 0 {
		cfg.Defaults.MaxLifetime = 30 * time.Minute
	}
	if cfg.Defaults.AcquireTimeout == 0 {
		cfg.Defaults.AcquireTimeout = 10 * time.Second
	}
	if cfg.FDWBridge.SocketPath == "" {
		cfg.FDWBridge.SocketPath = "/var/run/ansilo/bridge.sock"
	}
	if cfg.FDWBridge.CancelGracePeriod == 0 {
		cfg.FDWBridge.CancelGracePeriod = 5 * time.Second
	}
}

func validate(cfg *Config) error {
	for id, ds := range cfg.DataSources {
		if ds.Type == "" {
			return fmt.Errorf("data source %q: type is required", id)
		}
	}
	for _, e := range cfg.Entities {
		if e.ID == "" {
			return fmt.Errorf("entity config missing id")
		}
		if e.Source.DataSourceID == "" {
			return fmt.Errorf("entity %q: source.data_source_id is required", e.ID)
		}
		if _, ok := cfg.DataSources[e.Source.DataSourceID]; !ok {
			return fmt.Errorf("entity %q: unknown data source %q", e.ID, e.Source.DataSourceID)
		}
	}
	return nil
}

// Watcher watches a config file for changes and calls back with the new
// config, debounced — unchanged in shape from the teacher's Watcher.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:    path,
		callback: callback,
		watcher: w,
		stopCh:  make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					cw.reload()
				})
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error: %v", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		log.Printf("[config] hot-reload failed: %v", err)
		return
	}

	log.Printf("[config] configuration reloaded from %s", cw.path)
	cw.callback(cfg)
}

func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
