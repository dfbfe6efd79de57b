package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("Maple Street", "s3cret")
	require.NoError(t, cfg.Validate())
	require.Equal(t, "Maple Street", cfg.Household.Name)
	require.Equal(t, "127.0.0.1:3000", cfg.Server.Addr)
	require.Equal(t, 24*time.Hour, cfg.TokenTTL())
	require.True(t, cfg.Rotation.RequirePermission)
	require.Equal(t, "member", cfg.RBAC.DefaultRole)
}

func TestPermissionsUnion(t *testing.T) {
	cfg := Default("h", "s")
	require.Empty(t, cfg.Permissions([]string{"member"}))
	perms := cfg.Permissions([]string{"member", "coordinator"})
	require.True(t, perms[PermRotationRun])
	require.True(t, perms[PermRoleManage])
	require.False(t, cfg.Permissions([]string{"ghost"})[PermRotationRun])
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]func(*Config){
		"missing household": func(c *Config) { c.Household.Name = "" },
		"bad driver":        func(c *Config) { c.Store.Driver = "mysql" },
		"postgres no dsn":   func(c *Config) { c.Store.Driver = "postgres" },
		"no secret":         func(c *Config) { c.Auth.TokenSecret = "" },
		"bad ttl":           func(c *Config) { c.Auth.TokenTTL = "soon" },
		"bcrypt cost":       func(c *Config) { c.Auth.BcryptCost = 99 },
		"unknown default":   func(c *Config) { c.RBAC.DefaultRole = "ghost" },
		"empty permission": func(c *Config) {
			c.RBAC.Roles["member"] = RBACRole{Permissions: []string{""}}
		},
		"log level": func(c *Config) { c.Log.Level = "loud" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default("h", "s")
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.ErrorContains(t, err, "run cl init")

	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	require.Nil(t, cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "choreline.yml"), []byte(GenerateDefault("h", "s")), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	out, err := cfg.YAML()
	require.NoError(t, err)
	again, err := FromYAML(out)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}
