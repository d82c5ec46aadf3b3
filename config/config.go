package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Postgres    Postgres
	Telegram    Telegram
	Redis       Redis
	API         API
	Cache       Cache
	Jobs        Jobs
	GoogleDrive GoogleDrive
	Performance Performance
}

type Postgres struct {
	Host            string `env:"PG_HOST"`
	Port            int    `env:"PG_PORT"`
	DbName          string `env:"PG_DB_NAME"`
	Password        string `env:"PG_PASSWORD"`
	User            string `env:"PG_USER"`
	MaxOpenConns    int    `env:"PG_MAX_OPEN_CONNS"`
	ConnMaxLifetime int    `env:"PG_CONN_MAX_LIFETIME"`
	MaxIdleConns    int    `env:"PG_MAX_IDLE_CONNS"`
	ConnMaxIdleTime int    `env:"PG_CONN_MAX_IDLE_TIME"`
	MigrationDir    string `env:"PG_MIGRATION_DIR" envDefault:"migrations"`
	// максимум строк в одном INSERT при записи серий (ограничение pg на кол-во параметров)
	InsertBatchSize int `env:"PG_INSERT_BATCH_SIZE" envDefault:"1000"`
}

type Telegram struct {
	Token            string        `env:"TELEGRAM_TOKEN"`
	UpdTimeout       time.Duration `env:"TELEGRAM_UPD_TIMEOUT"`
	FileLimitInBytes int           `env:"TELEGRAM_FILE_LIMIT_IN_BYTES"`
}

type Redis struct {
	Host     string `env:"REDIS_HOST"`
	Port     int    `env:"REDIS_PORT"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"`
}

type API struct {
	Debug   bool          `env:"API_DEBUG" envDefault:"false"`
	Timeout time.Duration `env:"API_TIMEOUT"`
	MoexApi MoexApi
}

type MoexApi struct {
	Url   string `env:"MOEX_API_URL"`
	Board string `env:"MOEX_BOARD" envDefault:"TQBR"`
}

type Cache struct {
	QuotesExpiration      time.Duration `env:"CACHE_QUOTES_EXPIRATION" envDefault:"12h"`
	LatestPriceExpiration time.Duration `env:"CACHE_LATEST_PRICE_EXPIRATION" envDefault:"5m"`
}

type Jobs struct {
	RecalculatePerformanceCrontab string        `env:"RECALCULATE_PERFORMANCE_JOB_CRONTAB" envDefault:"0 3 * * *"`
	DeleteOldReportsInterval      time.Duration `env:"DELETE_OLD_REPORTS_JOB_INTERVAL" envDefault:"1h"`
}

type GoogleDrive struct {
	CredentialsFile string        `env:"GOOGLE_DRIVE_CREDENTIALS_FILE"`
	FileTTL         time.Duration `env:"GOOGLE_DRIVE_FILE_TTL" envDefault:"24h"`
}

type Performance struct {
	// на сколько дней раньше даты сделки начинается инкрементальный пересчет
	CascadeSlackDays int `env:"PERFORMANCE_CASCADE_SLACK_DAYS" envDefault:"1"`
	// 0 - без ограничения, по горутине на пользователя
	BatchConcurrency  int  `env:"PERFORMANCE_BATCH_CONCURRENCY" envDefault:"0"`
	AppendLatestPrice bool `env:"PERFORMANCE_APPEND_LATEST_PRICE" envDefault:"false"`
}

func MustLoad() *Config {
	_ = godotenv.Load(".env")

	cfg := &Config{}

	opts := env.Options{RequiredIfNoDef: true}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		log.Fatalf("parse config error: %s", err)
	}

	return cfg
}
