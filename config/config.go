package config

import (
	"time"

	"github.com/oneboxhq/onebox/internal/logger"
	"github.com/oneboxhq/onebox/internal/tracing"
)

type AppConfig struct {
	APIPort string `env:"PORT" envDefault:"8000"`
	APIKey  string `env:"API_KEY,required"`
}

type DatabaseConfig struct {
	Host            string `env:"ONEBOX_POSTGRES_HOST,required"`
	Port            string `env:"ONEBOX_POSTGRES_PORT,required"`
	User            string `env:"ONEBOX_POSTGRES_USER,required"`
	DBName          string `env:"ONEBOX_POSTGRES_DB_NAME,required"`
	Password        string `env:"ONEBOX_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"ONEBOX_POSTGRES_DB_MAX_CONN" envDefault:"50"`
	MaxIdleConn     int    `env:"ONEBOX_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"ONEBOX_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	SSLMode         string `env:"ONEBOX_POSTGRES_SSL_MODE" envDefault:"disable"`
}

type IMAPConfig struct {
	Host       string        `env:"IMAP_HOST,required"`
	Port       int           `env:"IMAP_PORT" envDefault:"993"`
	TLS        bool          `env:"IMAP_TLS" envDefault:"true"`
	Username   string        `env:"IMAP_USERNAME,required"`
	Password   string        `env:"IMAP_PASSWORD,required"`
	Folder     string        `env:"IMAP_FOLDER" envDefault:"INBOX"`
	RetryLimit int           `env:"IMAP_RETRY_LIMIT" envDefault:"3"`
	RetryDelay time.Duration `env:"IMAP_RETRY_DELAY" envDefault:"5s"`
}

type SyncConfig struct {
	// IdleTimeout bounds one push-mode wait; cancellation of the run
	// loop takes effect within this window.
	IdleTimeout time.Duration `env:"SYNC_IDLE_TIMEOUT" envDefault:"5m"`
	// Interval is the minimum spacing of timer-driven full syncs.
	Interval time.Duration `env:"SYNC_INTERVAL" envDefault:"10m"`
	// LookbackDays is the reconciliation window of a full sync.
	LookbackDays int `env:"SYNC_LOOKBACK_DAYS" envDefault:"30"`
	// RetryBackoff is the fixed sleep after a failed loop iteration.
	RetryBackoff time.Duration `env:"SYNC_RETRY_BACKOFF" envDefault:"5s"`
}

type SearchConfig struct {
	DefaultPageSize int `env:"SEARCH_DEFAULT_PAGE_SIZE" envDefault:"50"`
}

type EventsConfig struct {
	// RabbitMQURL is optional; when empty, notification publishing is
	// disabled and new messages are only indexed.
	RabbitMQURL string `env:"RABBITMQ_URL"`
}

type CronConfig struct {
	// ReconcileSchedule is an optional cron spec for an extra scheduled
	// reconciliation sync, e.g. "0 4 * * *". Empty disables the job.
	ReconcileSchedule string `env:"CRON_RECONCILE_SCHEDULE"`
}

type Config struct {
	AppConfig      *AppConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
	DatabaseConfig *DatabaseConfig
	IMAPConfig     *IMAPConfig
	SyncConfig     *SyncConfig
	SearchConfig   *SearchConfig
	EventsConfig   *EventsConfig
	CronConfig     *CronConfig
}
