// README: Scenario runner against a live medbid API; executes HTTP/DB/Redis checks and prints results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	sum := summarize(NewRunner(cfg).RunAll(ctx))
	fmt.Println("\n== Summary ==")
	fmt.Println(sum)
	if !sum.OK(cfg.Strict) {
		os.Exit(1)
	}
}

type Config struct {
	BaseURL        string        `mapstructure:"base_url"`
	DSN            string        `mapstructure:"dsn"`
	RedisAddr      string        `mapstructure:"redis_addr"`
	MigrationPath  string        `mapstructure:"migration"`
	ApplyMigration bool          `mapstructure:"apply_migration"`
	Strict         bool          `mapstructure:"strict"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Concurrency    int           `mapstructure:"concurrency"`
	Duration       time.Duration `mapstructure:"duration"`
}

// loadConfig reads MEDBID_BENCH_* from the environment; flags override it.
// The DB and Redis targets reuse the service's own variables.
func loadConfig(args []string) (Config, error) {
	v := viper.New()
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("migration", "migrations/0001_init.sql")
	v.SetDefault("timeout", 60*time.Second)
	v.SetDefault("concurrency", 20)
	v.SetDefault("duration", 10*time.Second)
	v.SetDefault("apply_migration", false)
	v.SetDefault("strict", false)
	v.SetEnvPrefix("MEDBID_BENCH")
	v.AutomaticEnv()
	_ = v.BindEnv("dsn", "MEDBID_DB_DSN")
	_ = v.BindEnv("redis_addr", "MEDBID_REDIS_ADDR")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("bench config: %w", err)
	}

	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "API base URL")
	fs.StringVar(&cfg.DSN, "dsn", cfg.DSN, "Postgres DSN; empty skips DB checks")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address; empty skips Redis checks")
	fs.StringVar(&cfg.MigrationPath, "migration", cfg.MigrationPath, "Migration SQL path")
	fs.BoolVar(&cfg.ApplyMigration, "apply-migration", cfg.ApplyMigration, "Apply migration SQL before tests")
	fs.BoolVar(&cfg.Strict, "strict", cfg.Strict, "Fail on skipped checks")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Total timeout")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Concurrency for race and perf checks")
	fs.DurationVar(&cfg.Duration, "duration", cfg.Duration, "Duration for perf checks")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.Concurrency < 1 {
		return Config{}, fmt.Errorf("concurrency must be at least 1, got %d", cfg.Concurrency)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}

type Summary struct {
	Pass, Fail, Skip int
}

func summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Status {
		case statusPass:
			s.Pass++
		case statusFail:
			s.Fail++
		case statusSkip:
			s.Skip++
		}
	}
	return s
}

// OK reports whether the run should exit zero; strict runs also reject skipped checks.
func (s Summary) OK(strict bool) bool {
	return s.Fail == 0 && (!strict || s.Skip == 0)
}

func (s Summary) String() string {
	return fmt.Sprintf("PASS=%d FAIL=%d SKIP=%d", s.Pass, s.Fail, s.Skip)
}
