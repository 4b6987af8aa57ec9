package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	WordPress WordPressConfig `mapstructure:"wordpress"`
	Import    ImportConfig    `mapstructure:"import"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// DatabaseConfig selects the gorm driver. Driver "none" runs without a
// database; only dry-run imports are accepted then.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

// StorageConfig configures the optional raw page archive.
type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"` // r2, s3, s3compatible (auto-detected when empty)
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
	Prefix    string `mapstructure:"prefix"`

	CacheControl string `mapstructure:"cache_control"`
	SkipExisting bool   `mapstructure:"skip_existing"`
}

type ScraperConfig struct {
	UserAgent         string          `mapstructure:"user_agent"`
	Timeout           time.Duration   `mapstructure:"timeout"`
	RequestsPerSecond float64         `mapstructure:"requests_per_second"`
	Burst             int             `mapstructure:"burst"`
	RetryCount        int             `mapstructure:"retry_count"`
	MaxListingPages   int             `mapstructure:"max_listing_pages"`
	Selectors         SelectorsConfig `mapstructure:"selectors"`
}

// SelectorsConfig holds the goquery selectors used against the Kita directory.
type SelectorsConfig struct {
	BezirkLinks string `mapstructure:"bezirk_links"`
	KitaLinks   string `mapstructure:"kita_links"`
	NextPage    string `mapstructure:"next_page"`
	DetailName  string `mapstructure:"detail_name"`
	DetailRoot  string `mapstructure:"detail_root"`
}

type WordPressConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ImportConfig struct {
	MaxFinishedJobs int           `mapstructure:"max_finished_jobs"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	ServerURL       string        `mapstructure:"server_url"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets come from the environment only
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("wordpress.base_url", "WORDPRESS_BASE_URL")
	v.BindEnv("import.server_url", "IMPORT_SERVER_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/kita.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "require")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "kita-import")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("storage.cache_control", "no-cache")
	v.SetDefault("storage.skip_existing", false)

	v.SetDefault("scraper.user_agent", "kita.de-import/1.0 (+https://kita.de)")
	v.SetDefault("scraper.timeout", 20*time.Second)
	v.SetDefault("scraper.requests_per_second", 2.0)
	v.SetDefault("scraper.burst", 1)
	v.SetDefault("scraper.retry_count", 2)
	v.SetDefault("scraper.max_listing_pages", 50)
	v.SetDefault("scraper.selectors.bezirk_links", "#bezirke a[href], ul.bezirke a[href], table.bezirke a[href]")
	v.SetDefault("scraper.selectors.kita_links", "#kitas a[href], ul.kitas a[href], table.kitas td a[href]")
	v.SetDefault("scraper.selectors.next_page", "a[rel=next], a.next")
	v.SetDefault("scraper.selectors.detail_name", "h1")
	v.SetDefault("scraper.selectors.detail_root", "body")

	v.SetDefault("wordpress.base_url", "https://www.kita.de/wissen")
	v.SetDefault("wordpress.timeout", 30*time.Second)

	v.SetDefault("import.max_finished_jobs", 200)
	v.SetDefault("import.poll_interval", 3*time.Second)
	v.SetDefault("import.server_url", "http://localhost:8080")
}

// Validate checks the settings that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}
	if c.Scraper.RequestsPerSecond <= 0 {
		return fmt.Errorf("scraper: requests_per_second must be positive")
	}
	if c.Scraper.Burst <= 0 {
		return fmt.Errorf("scraper: burst must be positive")
	}
	if _, err := url.ParseRequestURI(c.WordPress.BaseURL); err != nil {
		return fmt.Errorf("wordpress: invalid base_url %q: %w", c.WordPress.BaseURL, err)
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage: bucket is required when enabled")
	}
	return nil
}
