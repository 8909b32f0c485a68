package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "node-1", cfg.NodeID)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, "stakemesh", cfg.TopicPrefix)
	assert.False(t, cfg.KafkaEnabled)
}

func TestValidateRejectsInsecureDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err, "the default JWT secret must not pass validation")
	assert.Contains(t, err.Error(), "JWT_SECRET")

	cfg.AllowInsecureDefaults = true
	assert.NoError(t, cfg.Validate())

	cfg.AllowInsecureDefaults = false
	cfg.JWTSecret = "short"
	require.Error(t, cfg.Validate())

	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, cfg.Validate())
}

func TestValidateChecksPlacement(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.AllowInsecureDefaults = true

	cfg.NodeID = "node-9"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLUSTER_NODES")

	cfg.NodeID = "node-1"
	cfg.StoreBackend = "redis"
	require.Error(t, cfg.Validate())
}

func TestNodeAddrsParsing(t *testing.T) {
	cfg := &Config{ClusterNodes: []string{
		"node-1=host-a:3100",
		" node-2=host-b:3100 ",
		"malformed",
		"=no-id",
	}}

	addrs := cfg.NodeAddrs()
	assert.Equal(t, map[string]string{
		"node-1": "host-a:3100",
		"node-2": "host-b:3100",
	}, addrs)
}

func TestDSNPrefersDatabaseURL(t *testing.T) {
	cfg := &Config{
		PGHost: "db", PGPort: 5432, PGUser: "u", PGPassword: "p", PGDatabase: "d",
	}
	assert.Equal(t, "postgres://u:p@db:5432/d?sslmode=disable", cfg.DSN())

	cfg.DatabaseURL = "postgres://elsewhere/prod"
	assert.Equal(t, "postgres://elsewhere/prod", cfg.DSN())
}
