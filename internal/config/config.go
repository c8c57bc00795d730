package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port            string
	AppEnv          string
	MongoURI        string
	DBName          string
	JWTSecret       string
	ShutdownTimeout time.Duration

	PayPal    PayPalConfig
	RateLimit RateLimitConfig
}

type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	Mode         string
	WebhookID    string
	Currency     string
	BrandName    string
	Timeout      time.Duration
	FrontendURL  string
	// StrictSignatureVerification disables the development shortcut that
	// trusts every webhook without checking the signature.
	StrictSignatureVerification bool
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return Config{
		Port:            v.GetString("PORT"),
		AppEnv:          strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),
		MongoURI:        strings.TrimSpace(v.GetString("MONGO_URI")),
		DBName:          v.GetString("DB_NAME"),
		JWTSecret:       v.GetString("JWT_SECRET"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		PayPal: PayPalConfig{
			ClientID:                    strings.TrimSpace(v.GetString("PAYPAL_CLIENT_ID")),
			ClientSecret:                strings.TrimSpace(v.GetString("PAYPAL_CLIENT_SECRET")),
			Mode:                        strings.ToLower(v.GetString("PAYPAL_MODE")),
			WebhookID:                   strings.TrimSpace(v.GetString("PAYPAL_WEBHOOK_ID")),
			Currency:                    strings.ToUpper(v.GetString("PAYPAL_CURRENCY")),
			BrandName:                   v.GetString("PAYPAL_BRAND_NAME"),
			Timeout:                     v.GetDuration("PAYPAL_TIMEOUT"),
			FrontendURL:                 strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
			StrictSignatureVerification: v.GetBool("STRICT_SIGNATURE_VERIFICATION"),
		},
		RateLimit: RateLimitConfig{
			Requests: v.GetInt("RATE_LIMIT_REQUESTS"),
			Window:   v.GetDuration("RATE_LIMIT_WINDOW"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("DB_NAME", "fashion_admin")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("PAYPAL_CLIENT_ID", "")
	v.SetDefault("PAYPAL_CLIENT_SECRET", "")
	v.SetDefault("PAYPAL_MODE", "sandbox")
	v.SetDefault("PAYPAL_WEBHOOK_ID", "")
	v.SetDefault("PAYPAL_CURRENCY", "USD")
	v.SetDefault("PAYPAL_BRAND_NAME", "Fashion Admin")
	v.SetDefault("PAYPAL_TIMEOUT", 15*time.Second)
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("STRICT_SIGNATURE_VERIFICATION", true)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW", 15*time.Minute)
}
