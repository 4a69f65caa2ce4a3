package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Redis
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Supabase
	SupabaseURL            string
	SupabaseServiceKey     string
	SupabaseStorageBaseURL string
	SupabaseBucket         string

	// Gemini API
	GeminiAPIKeys    []string
	GeminiImageModel string
	GeminiVideoModel string
	GeminiRPS        float64

	// Vertex AI (설정되면 API 키 대신 사용)
	VertexAIProject         string
	VertexAILocation        string
	VertexAICredentialsJSON []byte

	// Video polling
	VideoPollInterval time.Duration
	VideoMaxWait      time.Duration

	// Server
	Port           string
	AllowAnonymous bool

	// Credit
	GenerationCost      int
	SponsorCost         int
	RemoveWatermarkCost int
	StartingCredits     int
	DailyBonus          int
	AdsPerDay           int
	CreditsPerAd        int
}

var globalConfig *Config

// LoadConfig - 환경변수 로드
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (있으면)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	globalConfig = &Config{
		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   getBool("REDIS_USE_TLS", true),

		// Supabase
		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:     getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBaseURL: getEnv("SUPABASE_STORAGE_BASE_URL", ""),
		SupabaseBucket:         getEnv("SUPABASE_BUCKET", "memories"),

		// Gemini API
		GeminiAPIKeys:    splitKeys(getEnv("GEMINI_API_KEY", "")),
		GeminiImageModel: getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiVideoModel: getEnv("GEMINI_VIDEO_MODEL", "veo-3.1-fast-generate-preview"),
		GeminiRPS:        getFloat("GEMINI_RPS", 2),

		VertexAIProject:  getEnv("VERTEXAI_PROJECT", ""),
		VertexAILocation: getEnv("VERTEXAI_LOCATION", "us-central1"),

		VideoPollInterval: time.Duration(getInt("VIDEO_POLL_INTERVAL_SECONDS", 10)) * time.Second,
		VideoMaxWait:      time.Duration(getInt("VIDEO_MAX_WAIT_SECONDS", 600)) * time.Second,

		// Server
		Port:           getEnv("PORT", "8080"),
		AllowAnonymous: getBool("ALLOW_ANONYMOUS", false),

		// Credit
		GenerationCost:      getInt("GENERATION_COST", 1),
		SponsorCost:         getInt("SPONSOR_COST", 50),
		RemoveWatermarkCost: getInt("REMOVE_WATERMARK_COST", 100),
		StartingCredits:     getInt("STARTING_CREDITS", 10),
		DailyBonus:          getInt("DAILY_BONUS", 5),
		AdsPerDay:           getInt("ADS_PER_DAY", 3),
		CreditsPerAd:        getInt("CREDITS_PER_AD", 2),
	}

	creds, err := loadVertexCredentials()
	if err != nil {
		return nil, err
	}
	globalConfig.VertexAICredentialsJSON = creds

	// 필수 환경변수 검증
	if err := globalConfig.validate(); err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   Redis: %s:%s (TLS: %v)", globalConfig.RedisHost, globalConfig.RedisPort, globalConfig.RedisUseTLS)
	log.Printf("   Supabase: %s", globalConfig.SupabaseURL)
	log.Printf("   Gemini: image=%s video=%s keys=%d", globalConfig.GeminiImageModel, globalConfig.GeminiVideoModel, len(globalConfig.GeminiAPIKeys))
	log.Printf("   Credit: %d per generation, start=%d", globalConfig.GenerationCost, globalConfig.StartingCredits)

	return globalConfig, nil
}

// GetConfig - 로드된 설정 가져오기
func GetConfig() *Config {
	if globalConfig == nil {
		log.Fatal("❌ Config not loaded. Call LoadConfig() first.")
	}
	return globalConfig
}

// validate - 필수 환경변수 검증
func (c *Config) validate() error {
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	if len(c.GeminiAPIKeys) == 0 && c.VertexAIProject == "" {
		return fmt.Errorf("GEMINI_API_KEY or VERTEXAI_PROJECT is required")
	}
	if c.VideoPollInterval <= 0 || c.VideoMaxWait < c.VideoPollInterval {
		return fmt.Errorf("VIDEO_MAX_WAIT_SECONDS must be >= VIDEO_POLL_INTERVAL_SECONDS > 0")
	}
	return nil
}

// loadVertexCredentials - VERTEXAI_CREDENTIALS_JSON (배포용) 또는 VERTEXAI_CREDENTIALS_PATH (로컬 테스트용)
func loadVertexCredentials() ([]byte, error) {
	if credsJSON := os.Getenv("VERTEXAI_CREDENTIALS_JSON"); credsJSON != "" {
		return []byte(credsJSON), nil
	}
	if credsPath := os.Getenv("VERTEXAI_CREDENTIALS_PATH"); credsPath != "" {
		data, err := os.ReadFile(credsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		return data, nil
	}
	return nil, nil
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if s := os.Getenv(key); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, s, defaultValue)
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if s := os.Getenv(key); s != "" {
		if parsed, err := strconv.ParseFloat(s, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if s := os.Getenv(key); s != "" {
		if parsed, err := strconv.ParseBool(s); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// splitKeys - 콤마로 구분된 API 키 목록 파싱
func splitKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
