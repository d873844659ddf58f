package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration. Every tunable is explicit here
// and injected into components at construction; nothing reads the environment
// after Load returns.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	Port        string `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	DevMode     bool   `env:"DEV_MODE" envDefault:"false"`

	JWTSecret       string        `env:"JWT_SECRET,required"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"30m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	OTPSalt        string        `env:"OTP_SALT,required"`
	OTPLength      int           `env:"OTP_LENGTH" envDefault:"6"`
	OTPTTL         time.Duration `env:"OTP_TTL" envDefault:"5m"`
	OTPMaxAttempts int           `env:"OTP_MAX_ATTEMPTS" envDefault:"3"`
	OTPCooldown    time.Duration `env:"OTP_COOLDOWN" envDefault:"1m"`

	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"1"`

	// ProfileCompletionThreshold is the minimum completion percentage for a
	// profile to count as complete.
	ProfileCompletionThreshold int `env:"PROFILE_COMPLETION_THRESHOLD" envDefault:"70"`

	// SMSProvider selects the delivery backend: "mock" or "twilio".
	SMSProvider      string `env:"SMS_PROVIDER" envDefault:"mock"`
	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `env:"TWILIO_FROM_NUMBER"`
}

// Load parses configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.OTPLength < 4 || c.OTPLength > 8 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 8, got %d", c.OTPLength)
	}
	if c.OTPMaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be at least 1, got %d", c.OTPMaxAttempts)
	}
	if c.RateLimitMax < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX must be at least 1, got %d", c.RateLimitMax)
	}
	if c.ProfileCompletionThreshold < 0 || c.ProfileCompletionThreshold > 100 {
		return fmt.Errorf("PROFILE_COMPLETION_THRESHOLD must be 0..100, got %d", c.ProfileCompletionThreshold)
	}
	switch c.SMSProvider {
	case "mock":
	case "twilio":
		if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.TwilioFromNumber == "" {
			return fmt.Errorf("SMS_PROVIDER=twilio requires TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER")
		}
	default:
		return fmt.Errorf("unsupported SMS_PROVIDER %q", c.SMSProvider)
	}
	return nil
}
