package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds environment-based configuration for the chatfamily server.
type Config struct {
	Port       int    `envconfig:"PORT" default:"8080"`
	DataDir    string `envconfig:"DATA_DIR" default:"data"`
	CORSOrigin string `envconfig:"CORS_ORIGIN" default:"*"`

	JWTSecret string        `envconfig:"JWT_SECRET"`
	JWTExpiry time.Duration `envconfig:"JWT_EXPIRY" default:"168h"`

	// MessageCap bounds the number of messages kept across all chats.
	MessageCap int `envconfig:"MESSAGE_CAP" default:"5000"`

	UploadDir      string `envconfig:"UPLOAD_DIR" default:"uploads"`
	MaxUploadBytes int64  `envconfig:"MAX_UPLOAD_BYTES" default:"26214400"`

	LiveKitAPIKey    string `envconfig:"LIVEKIT_API_KEY"`
	LiveKitAPISecret string `envconfig:"LIVEKIT_API_SECRET"`
	LiveKitURL       string `envconfig:"LIVEKIT_URL"`

	OTPTTL        time.Duration `envconfig:"OTP_TTL" default:"10m"`
	OTPRetryAfter time.Duration `envconfig:"OTP_RETRY_AFTER" default:"60s"`
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
