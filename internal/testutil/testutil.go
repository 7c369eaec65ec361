// Package testutil holds shared fixtures for integration tests that need a
// live PostgreSQL or Redis instance.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	// Import pgx driver for database/sql compatibility in tests.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/Abhracodec/osint-recon/internal/migrate"
)

// TestingTB is the subset of testing.TB the helpers rely on.
type TestingTB interface {
	Helper()
	Skip(args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
	Cleanup(func())
}

// DBTarget locates the PostgreSQL instance used by integration tests.
type DBTarget struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// TestDBTarget reads TEST_DB_* variables. The default port 55432 matches the
// compose test profile; CI sets TEST_DB_PORT=5432.
func TestDBTarget() DBTarget {
	return DBTarget{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     envOr("TEST_DB_PORT", "55432"),
		User:     envOr("TEST_DB_USER", "osint"),
		Password: envOr("TEST_DB_PASSWORD", "osint"),
		Name:     envOr("TEST_DB_NAME", "osint_recon"),
		SSLMode:  envOr("DB_SSL_MODE", "disable"),
	}
}

// DSN renders the target as a postgres URL, optionally pinned to a schema.
func (d DBTarget) DSN(schema string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	q := url.Values{"sslmode": {d.SSLMode}}
	if schema != "" {
		q.Set("search_path", schema+",public")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// SkipIfNoTestDB skips the test unless the database answers a ping.
// TEST_REQUIRE_DB or TEST_REQUIRE_INFRA turn the skip into a failure.
func SkipIfNoTestDB(t TestingTB) {
	t.Helper()
	db, err := sql.Open("pgx", TestDBTarget().DSN(""))
	if err == nil {
		err = pingWithin(db, 2*time.Second)
		closeQuietly(t, "probe db", db)
	}
	if err != nil {
		unavailable(t, envBool("TEST_REQUIRE_DB"), "test database not available:", err)
	}
}

// WithAutoDB hands fn a handle scoped to a fresh schema holding the migrated
// audit tables. The schema is dropped when the test ends.
func WithAutoDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	SkipIfNoTestDB(t)

	target := TestDBTarget()
	admin, err := sql.Open("pgx", target.DSN(""))
	if err != nil {
		t.Fatal("open admin db:", err)
	}
	schema := schemaName()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		closeQuietly(t, "admin db", admin)
		t.Fatalf("create schema %s: %v", schema, err)
	}

	db, err := sql.Open("pgx", target.DSN(schema))
	if err != nil {
		closeQuietly(t, "admin db", admin)
		t.Fatal("open schema db:", err)
	}
	db.SetMaxOpenConns(5)

	t.Cleanup(func() {
		closeQuietly(t, "schema db", db)
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dropCancel()
		if _, err := admin.ExecContext(dropCtx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		closeQuietly(t, "admin db", admin)
	})

	if _, err := migrate.Run(ctx, db); err != nil {
		t.Fatalf("migrate schema %s: %v", schema, err)
	}
	t.Logf("using schema %s", schema)
	fn(db)
}

// redisCandidates lists addresses probed when REDIS_ADDR is unset.
var redisCandidates = []string{"redis:6379", "localhost:6379", "localhost:56379"}

// SetupTestRedis returns a client on a flushed Redis DB reserved for the
// calling test, or skips when no server is reachable.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	candidates := redisCandidates
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		candidates = []string{addr}
	}
	addr := ""
	for _, c := range candidates {
		if redisReachable(c) {
			addr = c
			break
		}
	}
	if addr == "" {
		unavailable(t, envBool("TEST_REQUIRE_REDIS"), "redis not available for testing at", candidates)
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: reserveRedisDB(t, addr)})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		closeQuietly(t, "redis client", client)
		t.Fatalf("flush redis db at %s: %v", addr, err)
	}
	return client
}

// reserveRedisDB honours TEST_REDIS_DB, otherwise claims one of DB 1..15 with
// a lock key kept in DB 0 so a FlushDB on the reserved DB cannot drop it.
func reserveRedisDB(t TestingTB, addr string) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
		t.Logf("ignoring invalid TEST_REDIS_DB=%q", v)
	}

	meta := redis.NewClient(&redis.Options{Addr: addr})
	owner := fmt.Sprintf("%d:%d", os.Getpid(), time.Now().UnixNano())
	for n := 1; n <= 15; n++ {
		key := "osint-recon:testutil:db_lock:" + strconv.Itoa(n)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		ok, err := meta.SetNX(ctx, key, owner, 30*time.Minute).Result()
		cancel()
		if err != nil || !ok {
			continue
		}
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := meta.Del(ctx, key).Err(); err != nil {
				t.Logf("release %s: %v", key, err)
			}
			closeQuietly(t, "redis meta client", meta)
		})
		return n
	}
	closeQuietly(t, "redis meta client", meta)
	t.Logf("no free redis db at %s, sharing DB 1", addr)
	return 1
}

func redisReachable(addr string) bool {
	c := redis.NewClient(&redis.Options{Addr: addr})
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.Ping(ctx).Err() == nil
}

func pingWithin(db *sql.DB, d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return db.PingContext(ctx)
}

func unavailable(t TestingTB, required bool, args ...any) {
	t.Helper()
	if required || envBool("TEST_REQUIRE_INFRA") {
		t.Fatal(args...)
	}
	t.Skip(args...)
}

func schemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("t_%d", time.Now().UnixNano())
	}
	return "t_" + hex.EncodeToString(b)
}

func closeQuietly(t TestingTB, what string, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		t.Logf("close %s: %v", what, err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
