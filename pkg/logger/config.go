package logger

import "time"

const (
	// DefaultServiceName tags every entry unless Config.ServiceName is set.
	DefaultServiceName = "tax-filing-service"

	// DefaultSQLitePath is where the log sink lives when no path is given.
	DefaultSQLitePath = "./data/" + DefaultServiceName + "/logs.db"
)

// Config holds the logger configuration.
type Config struct {
	// ServiceName is attached to every entry as the "service" field.
	ServiceName string

	// Level is the minimum level: debug, info, warn or error.
	Level string

	// Environment "production" switches the console to JSON.
	Environment string

	EnableConsole bool

	// EnableSQLite keeps entries for the admin log query.
	EnableSQLite bool
	SQLiteDBPath string

	AsyncBufferSize int
	RetentionDays   int
	FlushInterval   time.Duration
	BatchSize       int
}

// DefaultConfig returns console-only logging at info level. The SQLite sink
// is opt-in.
func DefaultConfig() Config {
	return Config{
		ServiceName:     DefaultServiceName,
		Level:           "info",
		Environment:     "development",
		EnableConsole:   true,
		SQLiteDBPath:    DefaultSQLitePath,
		AsyncBufferSize: 1000,
		RetentionDays:   7,
		FlushInterval:   100 * time.Millisecond,
		BatchSize:       100,
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ServiceName == "" {
		c.ServiceName = d.ServiceName
	}
	if c.Level == "" {
		c.Level = d.Level
	}
	if c.SQLiteDBPath == "" {
		c.SQLiteDBPath = d.SQLiteDBPath
	}
	if c.AsyncBufferSize <= 0 {
		c.AsyncBufferSize = d.AsyncBufferSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	return c
}
