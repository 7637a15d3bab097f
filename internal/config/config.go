package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string   `env:"APP_PORT" envDefault:"3000"`
	AppEnv         string   `env:"APP_ENV" envDefault:"development"`
	BaseURL        string   `env:"BASE_URL" envDefault:"http://localhost:3000"` // public URL delayed jobs call back into
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	InternalSecret string   `env:"INTERNAL_ROUTE_SECRET"`
	SupportEmail   string   `env:"SUPPORT_EMAIL" envDefault:"support@example.com"`
	// TrustProxy takes the client address from X-Forwarded-For/X-Real-Ip.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool `env:"TRUST_PROXY" envDefault:"false"`

	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	JobWriteTimeout time.Duration `env:"JOB_WRITE_TIMEOUT" envDefault:"3m"` // astrology jobs chain several upstream calls

	AWSRegion      string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSEndpointURL string `env:"AWS_ENDPOINT_URL"` // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string `env:"AWS_SECRET_ACCESS_KEY"`
	DynamoTables   DynamoTables
	S3BucketName   string `env:"S3_BUCKET_NAME" envDefault:"matrimony-files"`
	SNSRegion      string `env:"SNS_REGION" envDefault:"us-east-1"`

	Redis     Redis
	JWT       JWT
	Payment   Payment
	QStash    QStash
	Astrology Astrology
	Email     Email
	OTP       OTP

	BrokerCompletionDelay time.Duration `env:"BROKER_COMPLETION_DELAY" envDefault:"5h31m"`
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users   string `env:"DYNAMO_TABLE_USERS" envDefault:"users"`
	Brokers string `env:"DYNAMO_TABLE_BROKERS" envDefault:"brokers"`
}

type Redis struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type JWT struct {
	PrivateKeyPath string        `env:"JWT_PRIVATE_KEY_PATH" envDefault:"./private_key.pem"`
	PublicKeyPath  string        `env:"JWT_PUBLIC_KEY_PATH" envDefault:"./public_key.pem"`
	Expiry         time.Duration `env:"JWT_EXPIRY" envDefault:"12h"`
}

// Payment configures the gateway client and the webhook reconciliation window.
type Payment struct {
	BaseURL        string        `env:"PAYMENT_BASE_URL" envDefault:"https://api.razorpay.com/v1"`
	KeyID          string        `env:"PAYMENT_KEY_ID"`
	KeySecret      string        `env:"PAYMENT_KEY_SECRET"`
	WebhookSecret  string        `env:"PAYMENT_WEBHOOK_SECRET"`
	Currency       string        `env:"PAYMENT_CURRENCY" envDefault:"INR"`
	PendingTTL     time.Duration `env:"PAYMENT_PENDING_TTL" envDefault:"120s"`
	ReconcileDelay time.Duration `env:"PAYMENT_RECONCILE_DELAY" envDefault:"20s"`
}

// QStash configures the delayed-job publisher. With no token, jobs run on an
// in-process timer instead.
type QStash struct {
	URL   string `env:"QSTASH_URL" envDefault:"https://qstash.upstash.io"`
	Token string `env:"QSTASH_TOKEN"`
}

type Astrology struct {
	GeocoderURL   string        `env:"GEOCODER_URL" envDefault:"https://nominatim.openstreetmap.org"`
	UserAgent     string        `env:"GEOCODER_USER_AGENT" envDefault:"MatrimonyAstrologyApp/1.0"`
	TimezoneURL   string        `env:"TIMEZONEDB_URL" envDefault:"http://api.timezonedb.com/v2.1"`
	TimezoneKey   string        `env:"TIMEZONEDB_KEY"`
	EphemerisURL  string        `env:"ASTRO_API_URL" envDefault:"https://json.freeastrologyapi.com"`
	EphemerisKey  string        `env:"FREE_ASTRO_API_KEY"`
	LLMBaseURL    string        `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMAPIKey     string        `env:"OPENAI_API_KEY"`
	LLMModel      string        `env:"LLM_MODEL" envDefault:"gpt-4.1"`
	BusinessZone  string        `env:"ASTRO_BUSINESS_TIMEZONE" envDefault:"Asia/Kolkata"`
	DelayOverride time.Duration `env:"ASTRO_DELAY_OVERRIDE"` // fixed delay for staging; zero keeps the schedule
}

// Email configures the templated-email provider. When MSG91 is not configured
// the SMTP fallback renders templates as plain text.
type Email struct {
	MSG91API     string `env:"MSG91_EMAIL_API" envDefault:"https://control.msg91.com/api/v5/email/send"`
	MSG91AuthKey string `env:"MSG91_AUTHKEY"`
	MSG91Domain  string `env:"MSG91_DOMAIN"`
	From         string `env:"EMAIL_FROM" envDefault:"noreply@example.com"`
	FromName     string `env:"EMAIL_FROM_NAME" envDefault:"Matrimony Support"`
	SMTPHost     string `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort     string `env:"SMTP_PORT" envDefault:"1025"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
}

type OTP struct {
	TTL         time.Duration `env:"OTP_TTL" envDefault:"5m"`
	VerifiedTTL time.Duration `env:"OTP_VERIFIED_TTL" envDefault:"10m"`
	LimitWindow time.Duration `env:"OTP_LIMIT_WINDOW" envDefault:"10m"`
	LimitMax    int           `env:"OTP_LIMIT_MAX" envDefault:"3"`
	CountryCode string        `env:"OTP_COUNTRY_CODE" envDefault:"+91"`
}

// Load reads all configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
