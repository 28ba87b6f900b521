package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 食材彙總的縮放策略
const (
	ScalePolicyNone     = "none"
	ScalePolicyServings = "servings"
)

// 快取後端
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config 應用配置
type Config struct {
	App         AppConfig        `mapstructure:"app"`
	Server      ServerConfig     `mapstructure:"server"`
	OpenRouter  OpenRouterConfig `mapstructure:"openrouter"`
	Refinement  RefinementConfig `mapstructure:"refinement"`
	Pipeline    PipelineConfig   `mapstructure:"pipeline"`
	Meal        MealConfig       `mapstructure:"meal"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Queue       QueueConfig      `mapstructure:"queue"`
	RateLimit   RateLimitConfig  `mapstructure:"rate_limit"`
	DedupWindow time.Duration    `mapstructure:"dedup_window"`
	LogLevel    string           `mapstructure:"log_level"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env         string `mapstructure:"env"`
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
	Name        string `mapstructure:"name"`
	MaxBodySize int64  `mapstructure:"max_body_size"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// OpenRouterConfig OpenRouter 配置
type OpenRouterConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// RefinementConfig 語意精煉設定
type RefinementConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Threshold 精煉結果的信心必須嚴格大於此值才會取代確定性結果
	Threshold float64 `mapstructure:"threshold"`
	// DisambiguateBelow 名稱信心低於此值時才請求消歧
	DisambiguateBelow float64       `mapstructure:"disambiguate_below"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// PipelineConfig 正規化流程設定
type PipelineConfig struct {
	Workers            int     `mapstructure:"workers"`
	LineWorkers        int     `mapstructure:"line_workers"`
	CanonicalThreshold float64 `mapstructure:"canonical_threshold"`
	DefaultServings    int     `mapstructure:"default_servings"`
	TablesPath         string  `mapstructure:"tables_path"`
}

// MealConfig 餐點彙總設定
type MealConfig struct {
	ScalePolicy    string `mapstructure:"scale_policy"`
	TargetServings int    `mapstructure:"target_servings"`
}

// CacheConfig 緩存配置
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Backend         string        `mapstructure:"backend"`
	MaxSize         int           `mapstructure:"max_size"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RedisConfig Redis 連線設定
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// QueueConfig 請求隊列設定
type QueueConfig struct {
	Workers int `mapstructure:"workers"`
	MaxSize int `mapstructure:"max_size"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// 加載 .env 文件（不存在時略過）
	_ = godotenv.Load()

	v := viper.New()

	// 設定預設值
	setDefaults(v)

	// 設定環境變數前綴
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 綁定環境變量
	bindings := map[string]string{
		"openrouter.api_key":    "OPENROUTER_API_KEY",
		"openrouter.model":      "OPENROUTER_MODEL",
		"openrouter.base_url":   "OPENROUTER_BASE_URL",
		"openrouter.max_tokens": "MODEL_MAX_TOKENS",
		"refinement.enabled":    "REFINEMENT_ENABLED",
		"refinement.threshold":  "REFINEMENT_THRESHOLD",
		"cache.enabled":         "CACHE_ENABLED",
		"cache.backend":         "CACHE_BACKEND",
		"redis.addr":            "REDIS_ADDR",
		"redis.password":        "REDIS_PASSWORD",
		"rate_limit.enabled":    "RATE_LIMIT_ENABLED",
		"rate_limit.requests":   "RATE_LIMIT_REQUESTS",
		"rate_limit.window":     "RATE_LIMIT_WINDOW",
		"dedup_window":          "DEDUP_WINDOW",
		"log_level":             "LOG_LEVEL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, "APP_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	// 設定設定檔名稱和路徑
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	// 讀取設定檔
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 解析設定
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 驗證必要設定
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// MaskAPIKey 遮罩 API Key，只顯示前後各 4 個字符
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// RefinementAvailable 精煉功能是否啟用且具備憑證
func (c *Config) RefinementAvailable() bool {
	return c.Refinement.Enabled && c.OpenRouter.Enabled && c.OpenRouter.APIKey != ""
}

// setDefaults 設定預設值
func setDefaults(v *viper.Viper) {
	// 應用程式設定
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "recipe-pipeline")
	v.SetDefault("app.max_body_size", 10<<20) // 10MB

	// 伺服器設定
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "120s")

	// OpenRouter 設定
	v.SetDefault("openrouter.enabled", false)
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.model", "qwen/qwen-2.5-72b-instruct:free")
	v.SetDefault("openrouter.max_tokens", 1000)
	v.SetDefault("openrouter.temperature", 0.1)
	v.SetDefault("openrouter.timeout", "30s")

	// 語意精煉設定
	v.SetDefault("refinement.enabled", false)
	v.SetDefault("refinement.threshold", 0.8)
	v.SetDefault("refinement.disambiguate_below", 0.6)
	v.SetDefault("refinement.timeout", "8s")

	// 正規化流程設定
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.line_workers", 4)
	v.SetDefault("pipeline.canonical_threshold", 0.85)
	v.SetDefault("pipeline.default_servings", 2)
	v.SetDefault("pipeline.tables_path", "")

	// 餐點設定
	v.SetDefault("meal.scale_policy", ScalePolicyNone)
	v.SetDefault("meal.target_servings", 0)

	// 快取設定
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", CacheBackendMemory)
	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.cleanup_interval", "10m")

	// Redis 設定
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// 隊列設定
	v.SetDefault("queue.workers", 5)
	v.SetDefault("queue.max_size", 100)

	// 限流設定
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("dedup_window", "1s")
	v.SetDefault("log_level", "info")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	// 驗證伺服器設定
	if config.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}

	// 驗證精煉設定
	if config.Refinement.Threshold < 0 || config.Refinement.Threshold > 1 {
		return fmt.Errorf("refinement threshold must be within [0,1]")
	}
	if config.Refinement.DisambiguateBelow < 0 || config.Refinement.DisambiguateBelow > 1 {
		return fmt.Errorf("refinement disambiguate_below must be within [0,1]")
	}
	if config.Refinement.Enabled && config.Refinement.Timeout <= 0 {
		return fmt.Errorf("invalid refinement timeout")
	}

	// 驗證流程設定
	if config.Pipeline.Workers <= 0 || config.Pipeline.LineWorkers <= 0 {
		return fmt.Errorf("invalid pipeline workers")
	}
	if config.Pipeline.CanonicalThreshold <= 0 || config.Pipeline.CanonicalThreshold > 1 {
		return fmt.Errorf("canonical threshold must be within (0,1]")
	}
	if config.Pipeline.DefaultServings < 0 {
		return fmt.Errorf("invalid default servings")
	}

	// 驗證餐點設定
	switch config.Meal.ScalePolicy {
	case ScalePolicyNone:
	case ScalePolicyServings:
		if config.Meal.TargetServings <= 0 {
			return fmt.Errorf("meal target_servings is required for the servings scale policy")
		}
	default:
		return fmt.Errorf("unknown meal scale policy %q", config.Meal.ScalePolicy)
	}

	// 驗證快取設定
	if config.Cache.Enabled {
		if config.Cache.Backend != CacheBackendMemory && config.Cache.Backend != CacheBackendRedis {
			return fmt.Errorf("unknown cache backend %q", config.Cache.Backend)
		}
		if config.Cache.MaxSize <= 0 {
			return fmt.Errorf("invalid cache max size")
		}
		if config.Cache.TTL <= 0 {
			return fmt.Errorf("invalid cache ttl")
		}
		if config.Cache.CleanupInterval <= 0 {
			return fmt.Errorf("invalid cache cleanup interval")
		}
	}

	// 驗證隊列設定
	if config.Queue.Workers <= 0 {
		return fmt.Errorf("invalid queue workers")
	}
	if config.Queue.MaxSize <= 0 {
		return fmt.Errorf("invalid queue max size")
	}

	return nil
}
