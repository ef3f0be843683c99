package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/xela07ax/sloguard/internal/domain"
)

// Источники счетчиков
const (
	SourceMemory   = "memory"
	SourcePostgres = "postgres"
)

// Config — корневая структура конфигурации сервиса.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Notifier NotifierConfig `mapstructure:"notifier"`
	Logger   LoggerConfig   `mapstructure:"logger"`

	// Каталог целей: inline в config.yaml или отдельным файлом (targets_file)
	Targets     []domain.Target `mapstructure:"targets"`
	TargetsFile string          `mapstructure:"targets_file"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	StreamInterval time.Duration `mapstructure:"stream_interval"` // период push в websocket
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GRPCConfig — порт сервиса grpc.health.v1. 0 — выключен.
type GRPCConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig описывает подключение к PostgreSQL. Пустой URL — работаем без базы.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub и lease). Пустой Addr — без Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig: публичный RSA ключ и требования к токенам операторов, bcrypt-хэши ключей ingestion.
type AuthConfig struct {
	PublicKeyPath   string        `mapstructure:"public_key_path"`
	Issuer          string        `mapstructure:"issuer"`
	Audience        string        `mapstructure:"audience"`
	Leeway          time.Duration `mapstructure:"leeway"`
	IngestKeyHashes []string      `mapstructure:"ingest_key_hashes"`
	PublicKey       []byte
}

// MonitorConfig — планировщик, хранение и расчет.
type MonitorConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	SuppressionWindow time.Duration `mapstructure:"suppression_window"`
	RetentionHours    int           `mapstructure:"retention_hours"`
	TrendDeadband     float64       `mapstructure:"trend_deadband"`
	CollectTimeout    time.Duration `mapstructure:"collect_timeout"`
	NotifyTimeout     time.Duration `mapstructure:"notify_timeout"`
	MaxParallel       int           `mapstructure:"max_parallel"`
	Source            string        `mapstructure:"source"` // memory, postgres
	BucketResolution  time.Duration `mapstructure:"bucket_resolution"`

	JournalBufferSize    int           `mapstructure:"journal_buffer_size"`
	JournalBatchSize     int           `mapstructure:"journal_batch_size"`
	JournalFlushInterval time.Duration `mapstructure:"journal_flush_interval"`
}

func (m MonitorConfig) Retention() time.Duration {
	return time.Duration(m.RetentionHours) * time.Hour
}

// NotifierConfig — внешние каналы оповещений. Лог пишется всегда.
type NotifierConfig struct {
	Webhooks     []WebhookConfig `mapstructure:"webhooks"`
	RedisPublish bool            `mapstructure:"redis_publish"`
}

type WebhookConfig struct {
	Name       string        `mapstructure:"name"`
	URL        string        `mapstructure:"url"`
	Format     string        `mapstructure:"format"` // json, slack
	Timeout    time.Duration `mapstructure:"timeout"`
	RatePerSec float64       `mapstructure:"rate_per_sec"`
	Burst      int           `mapstructure:"burst"`
	Attempts   uint          `mapstructure:"attempts"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
// path — явный путь к файлу (флаг --config); пустой — ищем config.yaml в . и ./configs.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")    // имя файла без расширения
		v.SetConfigType("yaml")      // формат
		v.AddConfigPath(".")         // ищем в корне
		v.AddConfigPath("./configs") // и в папке с конфигами
	}

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: MONITOR_INTERVAL=30s перекроет monitor.interval
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Каталог целей из отдельного файла дополняет inline-цели
	if cfg.TargetsFile != "" {
		targets, err := LoadTargetsFile(cfg.TargetsFile)
		if err != nil {
			return nil, err
		}
		cfg.Targets = append(cfg.Targets, targets...)
	}

	// 7. Загрузка ключа из Файла ИЛИ из ENV
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.stream_interval", 5*time.Second)
	v.SetDefault("grpc.port", 0)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("auth.audience", "sloguard")
	v.SetDefault("auth.leeway", 30*time.Second)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("monitor.interval", 60*time.Second)
	v.SetDefault("monitor.suppression_window", 15*time.Minute)
	v.SetDefault("monitor.retention_hours", 168)
	v.SetDefault("monitor.trend_deadband", 0.1)
	v.SetDefault("monitor.collect_timeout", 10*time.Second)
	v.SetDefault("monitor.notify_timeout", 15*time.Second)
	v.SetDefault("monitor.max_parallel", 8)
	v.SetDefault("monitor.source", SourceMemory)
	v.SetDefault("monitor.bucket_resolution", time.Minute)
	v.SetDefault("monitor.journal_buffer_size", 10000)
	v.SetDefault("monitor.journal_batch_size", 100)
	v.SetDefault("monitor.journal_flush_interval", 500*time.Millisecond)
}

// Validate — ошибки конфигурации фатальны, дефолтами их не подменяем.
func (c *Config) Validate() error {
	fail := func(field, reason string) error {
		return &domain.ConfigurationError{Field: field, Reason: reason}
	}

	if c.Monitor.Interval <= 0 {
		return fail("monitor.interval", "must be positive")
	}
	if c.Monitor.RetentionHours <= 0 {
		return fail("monitor.retention_hours", "must be positive")
	}
	if c.Monitor.SuppressionWindow <= 0 {
		return fail("monitor.suppression_window", "must be positive")
	}
	switch c.Monitor.Source {
	case SourceMemory:
	case SourcePostgres:
		if c.Database.URL == "" {
			return fail("monitor.source", "postgres source requires database.url")
		}
	default:
		return fail("monitor.source", fmt.Sprintf("unknown counter source %q", c.Monitor.Source))
	}
	if c.Notifier.RedisPublish && c.Redis.Addr == "" {
		return fail("notifier.redis_publish", "requires redis.addr")
	}
	for i, w := range c.Notifier.Webhooks {
		if w.URL == "" {
			return fail(fmt.Sprintf("notifier.webhooks[%d].url", i), "must not be empty")
		}
	}

	for i := range c.Targets {
		c.Targets[i] = c.Targets[i].Normalize()
	}
	return domain.ValidateTargets(c.Targets)
}

// loadKeyResource — ключ из ENV (Docker/K8s) или из файла по пути из конфига
func loadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (PEM)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	// Иначе читаем файл по пути из конфига
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
