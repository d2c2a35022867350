// README: Smoke and load runner for a live dispatchd; executes HTTP/DB/Redis
// checks and prints results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	bench := NewRunner(cfg)
	results := bench.RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, skipped := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case "PASS":
			pass++
		case "FAIL":
			fail++
		case "SKIP":
			skipped++
		}
	}
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", pass, fail, skipped)

	if fail > 0 {
		os.Exit(1)
	}
}

type Config struct {
	BaseURL        string
	DSN            string
	RedisAddr      string
	MigrationPath  string
	ApplyMigration bool
	Timeout        time.Duration
	Concurrency    int
	Duration       time.Duration
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", envOrDefault("DISPATCH_BENCH_BASE_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&cfg.DSN, "dsn", os.Getenv("DISPATCH_DB_DSN"), "Postgres DSN for archive checks (empty skips)")
	flag.StringVar(&cfg.RedisAddr, "redis", os.Getenv("DISPATCH_REDIS_ADDR"), "Redis address for delivery checks (empty skips)")
	flag.StringVar(&cfg.MigrationPath, "migration", envOrDefault("DISPATCH_BENCH_MIGRATION", "migrations/0001_init.sql"), "Migration SQL path")
	flag.BoolVar(&cfg.ApplyMigration, "apply-migration", false, "Apply migration SQL before checks")
	flag.DurationVar(&cfg.Timeout, "timeout", 60*time.Second, "Total timeout")
	flag.IntVar(&cfg.Concurrency, "concurrency", 20, "Concurrency for load checks")
	flag.DurationVar(&cfg.Duration, "duration", 10*time.Second, "Duration for load checks")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
