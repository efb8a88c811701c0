package config

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"alertengine"`
	Password string `env:"PASSWORD" envDefault:"alertengine"`
	Name     string `env:"NAME"     envDefault:"alertengine"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration for pub/sub fan-out and rate counters.
type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`

	// Enabled switches the broker onto the Redis pub/sub backend and turns
	// on rate counters. When false, delivery stays in-process.
	Enabled bool `env:"ENABLED" envDefault:"false"`
}
