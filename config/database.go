package config

import (
	"net"
	"strconv"
	"strings"
)

// DBConfig contains PostgreSQL configuration for the scan audit trail.
type DBConfig struct {
	Host     string `env:"HOST"           envDefault:"localhost"`
	Port     int    `env:"PORT"           envDefault:"5432"`
	User     string `env:"USER"           envDefault:"osint"`
	Password string `env:"PASSWORD"       envDefault:"osint"`
	Name     string `env:"NAME"           envDefault:"osint_recon"`
	SSLMode  string `env:"SSL_MODE"       envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrations applies the embedded audit migrations when the audit trail connects.
	RunMigrations bool `env:"RUN_MIGRATIONS" envDefault:"true"`
}

// RedisConfig contains Redis configuration for the record store and queue.
type RedisConfig struct {
	// URI wins over Host/Port when set; it may be host:port or a redis:// URL.
	URI                string   `env:"URI"                  envDefault:""`
	Host               string   `env:"HOST"                 envDefault:"localhost"`
	Port               int      `env:"PORT"                 envDefault:"6379"`
	DB                 int      `env:"DB"                   envDefault:"0"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// Sanitize fills URI from Host/Port when it was not given.
func (r *RedisConfig) Sanitize() {
	r.URI = strings.TrimSpace(r.URI)
	if r.URI == "" {
		host := strings.TrimSpace(r.Host)
		if host == "" {
			host = "localhost"
		}
		if r.Port <= 0 {
			r.Port = 6379
		}
		r.URI = net.JoinHostPort(host, strconv.Itoa(r.Port))
	}
	if r.DB < 0 {
		r.DB = 0
	}
}
