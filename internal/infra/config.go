package infra

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"stakemesh"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"stakemesh"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"stakemesh"`
	PGMaxConns  int32  `env:"PG_MAX_CONNS" envDefault:"20"`

	// StoreBackend selects the state/event store: "postgres" or "memory"
	// (single-process dev and tests only).
	StoreBackend string `env:"STORE_BACKEND" envDefault:"postgres"`

	// JWT
	JWTSecret      string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTAdminExpiry string `env:"JWT_ADMIN_EXPIRY" envDefault:"8h"`

	// Server
	APIPort int `env:"API_PORT" envDefault:"3100"`

	// Cluster placement. NodeID must appear in ClusterNodes ("id=host:port"
	// entries); entities hash onto the node ring, and misplaced
	// invocations forward over the internal transport.
	NodeID       string   `env:"NODE_ID" envDefault:"node-1"`
	ClusterNodes []string `env:"CLUSTER_NODES" envDefault:"node-1=localhost:3100"`

	// Actor runtime
	EntityIdleTimeout time.Duration `env:"ENTITY_IDLE_TIMEOUT" envDefault:"5m"`
	InvokeTimeout     time.Duration `env:"INVOKE_TIMEOUT" envDefault:"10s"`

	// Kafka
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	TopicPrefix  string `env:"TOPIC_PREFIX" envDefault:"stakemesh"`

	// Forwarder
	ForwarderInterval  time.Duration `env:"FORWARDER_INTERVAL" envDefault:"500ms"`
	ForwarderBatchSize int           `env:"FORWARDER_BATCH_SIZE" envDefault:"100"`

	// Settlement
	SettlementGroupID     string `env:"SETTLEMENT_GROUP_ID" envDefault:"settlement-saga"`
	SettlementConcurrency int64  `env:"SETTLEMENT_CONCURRENCY" envDefault:"4"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure or inconsistent configuration that must
// not run in production. Set ALLOW_INSECURE_DEFAULTS=true to bypass the
// secret checks (local dev only).
func (c *Config) Validate() error {
	if _, ok := c.NodeAddrs()[c.NodeID]; !ok {
		return fmt.Errorf("NODE_ID %q is not listed in CLUSTER_NODES", c.NodeID)
	}
	if c.StoreBackend != "postgres" && c.StoreBackend != "memory" {
		return fmt.Errorf("STORE_BACKEND must be postgres or memory, got %q", c.StoreBackend)
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// NodeAddrs parses CLUSTER_NODES ("id=host:port" entries) into an
// id -> address map. Malformed entries are skipped.
func (c *Config) NodeAddrs() map[string]string {
	out := make(map[string]string, len(c.ClusterNodes))
	for _, entry := range c.ClusterNodes {
		id, addr, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || id == "" || addr == "" {
			continue
		}
		out[id] = addr
	}
	return out
}
