package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppPort       string
	DBDriver      string
	DBDSN         string
	JWTSecret     string
	JWTExpiresMin int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	UploadDir      string
	PublicBaseURL  string
	MaxUploadBytes int64
	IDEncryptKey   string

	GoogleClientID  string
	GoogleSecret    string
	GoogleRedirect  string
	FrontendBaseURL string
	CORSOrigins     string

	ChatbotDelay     time.Duration
	ChatbotRulesPath string

	WebDir        string
	JobExpirySpec string

	AuthRateLimit  int
	AuthRateWindow time.Duration
}

func Load() Config {
	expires, _ := strconv.Atoi(get("JWT_EXPIRES_MIN", "10080"))
	redisDB, _ := strconv.Atoi(get("REDIS_DB", "0"))
	maxUpload, _ := strconv.ParseInt(get("MAX_UPLOAD_BYTES", "512000"), 10, 64)
	chatbotDelay, _ := strconv.Atoi(get("CHATBOT_DELAY_MS", "800"))
	rateLimit, _ := strconv.Atoi(get("AUTH_RATE_LIMIT", "10"))
	rateWindow, _ := strconv.Atoi(get("AUTH_RATE_WINDOW_MIN", "15"))

	return Config{
		AppPort:       get("APP_PORT", "8080"),
		DBDriver:      strings.ToLower(get("DB_DRIVER", "postgres")),
		DBDSN:         must("DB_DSN"),
		JWTSecret:     must("JWT_SECRET"),
		JWTExpiresMin: expires,

		RedisAddr:     get("REDIS_ADDR", "localhost:6379"),
		RedisPassword: get("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,

		UploadDir:      get("UPLOAD_DIR", "./uploads"),
		PublicBaseURL:  strings.TrimRight(get("APP_BASE_URL", ""), "/"),
		MaxUploadBytes: maxUpload,
		IDEncryptKey:   get("ID_ENCRYPT_KEY", ""),

		GoogleClientID:  get("GOOGLE_CLIENT_ID", ""),
		GoogleSecret:    get("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirect:  get("GOOGLE_REDIRECT_URL", ""),
		FrontendBaseURL: get("FRONTEND_BASE_URL", "http://localhost:3000"),
		CORSOrigins:     get("CORS_ORIGINS", "http://127.0.0.1:3000, http://localhost:3000"),

		ChatbotDelay:     time.Duration(chatbotDelay) * time.Millisecond,
		ChatbotRulesPath: get("CHATBOT_RULES_PATH", ""),

		WebDir:        get("WEB_DIR", "./web/dist"),
		JobExpirySpec: get("JOB_EXPIRY_SPEC", "@every 1h"),

		AuthRateLimit:  rateLimit,
		AuthRateWindow: time.Duration(rateWindow) * time.Minute,
	}
}

func get(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}
