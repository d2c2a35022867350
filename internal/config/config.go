// README: Config loader layering .env, environment variables and flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Weights are the ranking coefficients w1..w4 of the composite score.
type Weights struct {
	Distance   float64 `json:"distance"`
	ETA        float64 `json:"eta"`
	Quality    float64 `json:"quality"`
	Acceptance float64 `json:"acceptance"`
}

// DispatchParams is the runtime-tunable part of the engine. The admin surface
// swaps a whole validated copy at once, so a reader never observes a half
// updated set.
type DispatchParams struct {
	InitialRadiusM float64
	RadiusFactor   float64
	MaxRadiusM     float64
	MaxRounds      int
	TopK           int
	OfferTimeout   time.Duration
	// QualityFloor excludes low-quality agents before scoring. It is relaxed
	// by QualityFloorRelax on each retry round, never below zero.
	QualityFloor      float64
	QualityFloorRelax float64
	Weights           Weights
	// Epsilon keeps the inverse-distance and inverse-ETA terms finite.
	Epsilon float64
	// AssumedSpeedMPS is the straight-line speed used for the ETA fallback
	// when no routing provider is available.
	AssumedSpeedMPS float64
	// RetryDeclinedSameRound re-offers to agents that declined earlier in the
	// same round once the candidate set expands. Off by default: a decline
	// exhausts that round's slot.
	RetryDeclinedSameRound bool
}

// Validate rejects parameter sets that would stall or livelock dispatch.
func (p DispatchParams) Validate() error {
	if p.InitialRadiusM <= 0 {
		return fmt.Errorf("initial radius must be positive, got %v", p.InitialRadiusM)
	}
	if p.RadiusFactor <= 1 {
		return fmt.Errorf("radius factor must exceed 1, got %v", p.RadiusFactor)
	}
	if p.MaxRadiusM < p.InitialRadiusM {
		return fmt.Errorf("max radius %v below initial radius %v", p.MaxRadiusM, p.InitialRadiusM)
	}
	if p.MaxRounds < 1 {
		return fmt.Errorf("max rounds must be at least 1, got %d", p.MaxRounds)
	}
	if p.TopK < 1 {
		return fmt.Errorf("top-k must be at least 1, got %d", p.TopK)
	}
	if p.OfferTimeout <= 0 {
		return fmt.Errorf("offer timeout must be positive, got %v", p.OfferTimeout)
	}
	if p.QualityFloor < 0 || p.QualityFloor > 1 {
		return fmt.Errorf("quality floor must be within [0,1], got %v", p.QualityFloor)
	}
	if p.Epsilon <= 0 {
		return fmt.Errorf("epsilon must be positive, got %v", p.Epsilon)
	}
	if p.AssumedSpeedMPS <= 0 {
		return fmt.Errorf("assumed speed must be positive, got %v", p.AssumedSpeedMPS)
	}
	return nil
}

// DefaultDispatchParams mirror the documented defaults: 5 km start radius,
// doubling per round, three rounds, K=3, 15 s acceptance window.
func DefaultDispatchParams() DispatchParams {
	return DispatchParams{
		InitialRadiusM:    5000,
		RadiusFactor:      2,
		MaxRadiusM:        20000,
		MaxRounds:         3,
		TopK:              3,
		OfferTimeout:      15 * time.Second,
		QualityFloor:      0.2,
		QualityFloorRelax: 0.1,
		Weights:           Weights{Distance: 1, ETA: 1, Quality: 0.5, Acceptance: 0.5},
		Epsilon:           1,
		AssumedSpeedMPS:   8.33,
	}
}

type SpatialConfig struct {
	CellSizeM     float64
	ResultCap     int
	StaleAfter    time.Duration
	EvictAfter    time.Duration
	SweepInterval time.Duration
}

type IngestConfig struct {
	// MaxSpeedMPS bounds the implied speed between consecutive reports;
	// faster jumps are rejected as GPS error or spoofing.
	MaxSpeedMPS float64
}

type Config struct {
	HTTP struct {
		Addr string
	}
	DB struct {
		DSN string
	}
	Redis struct {
		Addr string
	}
	Maps struct {
		APIKey string
	}
	Spatial  SpatialConfig
	Ingest   IngestConfig
	Dispatch DispatchParams
}

// Load reads configuration in order: .env (if present) → environment → flags.
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	var cfg Config
	cfg.HTTP.Addr = envOrDefault("DISPATCH_HTTP_ADDR", ":8080")
	cfg.DB.DSN = os.Getenv("DISPATCH_DB_DSN")
	cfg.Redis.Addr = os.Getenv("DISPATCH_REDIS_ADDR")
	cfg.Maps.APIKey = os.Getenv("GOOGLE_MAPS_API_KEY")

	cfg.Spatial = SpatialConfig{
		CellSizeM:     envOrDefaultFloat("DISPATCH_CELL_SIZE_M", 500),
		ResultCap:     envOrDefaultInt("DISPATCH_RESULT_CAP", 50),
		StaleAfter:    envOrDefaultDuration("DISPATCH_STALE_AFTER", 30*time.Second),
		EvictAfter:    envOrDefaultDuration("DISPATCH_EVICT_AFTER", 5*time.Minute),
		SweepInterval: envOrDefaultDuration("DISPATCH_SWEEP_INTERVAL", time.Minute),
	}
	cfg.Ingest = IngestConfig{
		MaxSpeedMPS: envOrDefaultFloat("DISPATCH_MAX_SPEED_MPS", 70),
	}

	p := DefaultDispatchParams()
	p.InitialRadiusM = envOrDefaultFloat("DISPATCH_INITIAL_RADIUS_M", p.InitialRadiusM)
	p.MaxRadiusM = envOrDefaultFloat("DISPATCH_MAX_RADIUS_M", p.MaxRadiusM)
	p.MaxRounds = envOrDefaultInt("DISPATCH_MAX_ROUNDS", p.MaxRounds)
	p.TopK = envOrDefaultInt("DISPATCH_TOP_K", p.TopK)
	p.OfferTimeout = envOrDefaultDuration("DISPATCH_OFFER_TIMEOUT", p.OfferTimeout)
	p.QualityFloor = envOrDefaultFloat("DISPATCH_QUALITY_FLOOR", p.QualityFloor)
	cfg.Dispatch = p

	pflag.StringVar(&cfg.HTTP.Addr, "addr", cfg.HTTP.Addr, "HTTP listen address")
	pflag.StringVar(&cfg.DB.DSN, "db-dsn", cfg.DB.DSN, "Postgres DSN for the trip archive (empty disables)")
	pflag.StringVar(&cfg.Redis.Addr, "redis-addr", cfg.Redis.Addr, "Redis address for offer delivery (empty uses in-process)")
	pflag.Parse()

	if err := cfg.Dispatch.Validate(); err != nil {
		return Config{}, err
	}
	if cfg.Spatial.CellSizeM <= 0 || cfg.Spatial.ResultCap < 1 {
		return Config{}, fmt.Errorf("invalid spatial config: cell=%v cap=%d", cfg.Spatial.CellSizeM, cfg.Spatial.ResultCap)
	}
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
