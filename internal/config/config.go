package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const (
	PermRotationRun = "rotation.run"
	PermTaskCreate  = "task.create"
	PermRoleManage  = "role.manage"
)

// Config models choreline.yml.
type Config struct {
	Household struct {
		Name string `yaml:"name"`
	} `yaml:"household"`
	Store struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"store"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Auth struct {
		TokenSecret string `yaml:"token_secret"`
		TokenTTL    string `yaml:"token_ttl"`
		BcryptCost  int    `yaml:"bcrypt_cost"`
	} `yaml:"auth"`
	Rotation struct {
		RequirePermission bool `yaml:"require_permission"`
	} `yaml:"rotation"`
	Tasks struct {
		RequirePermission bool `yaml:"require_permission"`
	} `yaml:"tasks"`
	RBAC struct {
		DefaultRole string `yaml:"default_role"`
		// BootstrapRole is granted to the first registered user in addition to
		// the default role.
		BootstrapRole string              `yaml:"bootstrap_role"`
		Roles         map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run cl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Household.Name == "" {
		return fmt.Errorf("config.household.name is required")
	}
	switch c.Store.Driver {
	case "", "sqlite":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("config.store.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config.store.driver must be sqlite or postgres")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("config.auth.token_secret is required")
	}
	if ttl, err := time.ParseDuration(c.Auth.TokenTTL); err != nil || ttl <= 0 {
		return fmt.Errorf("config.auth.token_ttl must be a positive duration")
	}
	if c.Auth.BcryptCost != 0 && (c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost) {
		return fmt.Errorf("config.auth.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	for roleID, role := range c.RBAC.Roles {
		if roleID == "" {
			return fmt.Errorf("config.rbac.roles contains empty role id")
		}
		for _, perm := range role.Permissions {
			if perm == "" {
				return fmt.Errorf("role %s has empty permission id", roleID)
			}
		}
	}
	for _, ref := range []struct{ key, role string }{
		{"default_role", c.RBAC.DefaultRole},
		{"bootstrap_role", c.RBAC.BootstrapRole},
	} {
		if ref.role == "" {
			continue
		}
		if _, ok := c.RBAC.Roles[ref.role]; !ok {
			return fmt.Errorf("config.rbac.%s references unknown role %s", ref.key, ref.role)
		}
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be debug, info, warn or error")
	}
	return nil
}

// TokenTTL returns the parsed token lifetime. Validate guarantees it parses.
func (c *Config) TokenTTL() time.Duration {
	ttl, err := time.ParseDuration(c.Auth.TokenTTL)
	if err != nil || ttl <= 0 {
		return 24 * time.Hour
	}
	return ttl
}

// BcryptCost returns the configured cost or bcrypt's default.
func (c *Config) BcryptCost() int {
	if c.Auth.BcryptCost == 0 {
		return bcrypt.DefaultCost
	}
	return c.Auth.BcryptCost
}

// Permissions returns the union of permissions granted by roles.
func (c *Config) Permissions(roles []string) map[string]bool {
	perms := map[string]bool{}
	for _, r := range roles {
		for _, p := range c.RBAC.Roles[r].Permissions {
			perms[p] = true
		}
	}
	return perms
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "choreline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(household, tokenSecret string) string {
	return fmt.Sprintf(defaultTemplate, household, tokenSecret)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a household.
func Default(household, tokenSecret string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(household, tokenSecret))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config back to YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `household:
  name: %q

store:
  driver: sqlite
  dsn: ""

server:
  addr: 127.0.0.1:3000

auth:
  token_secret: %q
  token_ttl: 24h
  bcrypt_cost: 10

rotation:
  require_permission: true

tasks:
  require_permission: false

rbac:
  default_role: member
  bootstrap_role: coordinator
  roles:
    member:
      description: "Claims, completes and reviews chores"
      permissions: []
    coordinator:
      description: "Runs rotations and manages roles"
      permissions: [rotation.run, task.create, role.manage]

log:
  level: info
`
