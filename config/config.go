package config

import (
	"os"
	"time"
)

// Config holds every runtime setting for the storefront service. It is built
// once in main and handed to the packages that need it; nothing else reads
// the environment.
type Config struct {
	DBHost string
	DBPort string
	DBUser string
	DBPass string
	DBName string

	RedisAddr   string
	KafkaBroker string
	HTTPAddr    string

	// CardEncryptionKey is the base64 encoded 32 byte master key for the
	// card vault. Invalid or missing keys are replaced with a generated one
	// at startup (see service.NewVault).
	CardEncryptionKey string

	// Per-provider callback signing secrets.
	AlipaySecret string
	WechatSecret string

	// VerifyTimeout bounds outbound signature verification.
	VerifyTimeout time.Duration
}

func Load() Config {
	return Config{
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "5432"),
		DBUser:            getEnv("DB_USER", "postgres"),
		DBPass:            getEnv("DB_PASS", "postgres"),
		DBName:            getEnv("DB_NAME", "storefrontdb"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBroker:       getEnv("KAFKA_BROKER", "kafka:9092"),
		HTTPAddr:          getEnv("HTTP_ADDR", ":3010"),
		CardEncryptionKey: os.Getenv("CARD_ENCRYPTION_KEY"),
		AlipaySecret:      os.Getenv("ALIPAY_SECRET"),
		WechatSecret:      os.Getenv("WECHAT_SECRET"),
		VerifyTimeout:     getEnvDuration("VERIFY_TIMEOUT", 5*time.Second),
	}
}

func (c Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPass +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=disable TimeZone=UTC"
}

func getEnv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getEnvDuration(k string, d time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return d
}
