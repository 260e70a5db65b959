package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Server struct {
		Port   int    `env:"PORT" envDefault:"3000"`
		Origin string `env:"ORIGIN" envDefault:"*"`

		// names this instance's settlement queue and relay origin; random when unset
		InstanceID string `env:"INSTANCE_ID"`
	}

	Auth struct {
		JWTSecret   string        `env:"JWT_SECRET,required,notEmpty"`
		TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
		BcryptCost  int           `env:"BCRYPT_COST" envDefault:"10"`
		AdminPhones []string      `env:"ADMIN_PHONES" envSeparator:","`
	}

	Payments struct {
		// deferred | verification
		Policy            string        `env:"PAYMENT_POLICY" envDefault:"deferred"`
		CommissionRate    string        `env:"COMMISSION_RATE" envDefault:"0.10"`
		SettlementDelay   time.Duration `env:"SETTLEMENT_DELAY" envDefault:"2s"`
		WithdrawalDelay   time.Duration `env:"WITHDRAWAL_DELAY" envDefault:"3s"`
		VerificationCodes []string      `env:"PAYMENT_VERIFICATION_CODES" envSeparator:"," envDefault:"1234,2024"`
		// operator=number pairs shown in manual payment instructions
		MerchantNumbers map[string]string `env:"MERCHANT_NUMBERS" envDefault:"mtn:0166344282,celtis:0144110208"`
	}

	Redis struct {
		Addr     string `env:"REDIS_ADDR"`
		Password string `env:"REDIS_PASSWORD"`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
		Channel  string `env:"REDIS_EVENTS_CHANNEL" envDefault:"servicehub:events"`
	}

	Database struct {
		URL string `env:"DATABASE_URL"`
	}
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
