package mongotask

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config represents the configuration for the MongoDB session.
type Config struct {
	ConnectionURL          string        `env:"MONGODB_URL,required"`                             // ConnectionURL is the URL of the database.
	ConnectTimeout         time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`         // ConnectTimeout is the timeout for connecting to the database.
	ServerSelectionTimeout time.Duration `env:"MONGODB_SERVER_SELECTION_TIMEOUT" envDefault:"30s"` // ServerSelectionTimeout bounds how long an operation waits for a usable server.
	MaxPoolSize            uint64        `env:"MONGODB_MAX_POOL_SIZE" envDefault:"100"`           // MaxPoolSize is the maximum number of connections in the connection pool.
	MinPoolSize            uint64        `env:"MONGODB_MIN_POOL_SIZE" envDefault:"1"`             // MinPoolSize is the minimum number of connections in the connection pool.
	RetryAttempts          int           `env:"MONGODB_RETRY_ATTEMPTS" envDefault:"3"`            // RetryAttempts is the number of attempts to connect to the database.
	RetryInterval          time.Duration `env:"MONGODB_RETRY_INTERVAL" envDefault:"5s"`           // RetryInterval is the delay before the second connection attempt.
	RetryMultiplier        float64       `env:"MONGODB_RETRY_MULTIPLIER" envDefault:"1"`          // RetryMultiplier grows the delay between later attempts. 1 keeps it fixed.
	RetryMaxInterval       time.Duration `env:"MONGODB_RETRY_MAX_INTERVAL" envDefault:"30s"`      // RetryMaxInterval caps the delay between attempts.
	CommandTimeout         time.Duration `env:"MONGODB_COMMAND_TIMEOUT" envDefault:"30s"`         // CommandTimeout bounds a single command task. Zero means no bound.
}

// ConfigFromEnv parses Config from MONGODB_* environment variables
func ConfigFromEnv() (Config, error) {
	return env.ParseAs[Config]()
}
