package config

import (
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// App mode & listeners
	Mode       string
	ServerAddr string
	WebAddr    string
	TLSCert    string
	TLSKey     string

	// Tokens (backend side)
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	RotateRefresh   bool

	// Web tier
	BackendURL       string
	GatewayTimeout   time.Duration
	SingleUseRefresh bool
	CookieSecure     bool
	CookieSameSite   http.SameSite
	LoginPath        string

	// Kafka
	KafkaBroker    string
	KafkaTopic     string
	KafkaGroupID   string
	KafkaPartition int
	KafkaReadTO    time.Duration
	KafkaWriteTO   time.Duration

	// Cassandra
	CassandraHost       string
	CassandraKeyspace   string
	CassandraUsername   string
	CassandraPassword   string
	CassandraTimeout    time.Duration
	CassandraDC         string
	CassandraMigrations string

	// Content repository (headless CMS)
	CMSProjectID  string
	CMSDataset    string
	CMSAPIVersion string
	CMSToken      string
	CMSCachePath  string
	CMSCacheTTL   time.Duration
}

var cfg *Config

// Init loads the config using Viper and returns it
func Init() *Config {
	viper.SetDefault("MODE", "server")
	viper.SetDefault("SERVER_ADDR", ":8080")
	viper.SetDefault("WEB_ADDR", ":3000")
	viper.SetDefault("TLS_CERT", "")
	viper.SetDefault("TLS_KEY", "")

	viper.SetDefault("JWT_SECRET", "")
	viper.SetDefault("ACCESS_TOKEN_TTL", "1h")
	viper.SetDefault("REFRESH_TOKEN_TTL", "168h")
	viper.SetDefault("ROTATE_REFRESH_TOKENS", false)

	viper.SetDefault("BACKEND_URL", "http://localhost:8080")
	viper.SetDefault("GATEWAY_TIMEOUT", "15s")
	viper.SetDefault("SINGLE_USE_REFRESH", false)
	viper.SetDefault("COOKIE_SECURE", false)
	viper.SetDefault("COOKIE_SAMESITE", "lax")
	viper.SetDefault("LOGIN_PATH", "/login")

	viper.SetDefault("KAFKA_BROKER", "localhost:29092")
	viper.SetDefault("KAFKA_TOPIC", "feed-topic")
	viper.SetDefault("KAFKA_GROUP_ID", "worker-group")
	viper.SetDefault("KAFKA_PARTITION", 0)
	viper.SetDefault("KAFKA_READ_TIMEOUT", "10s")
	viper.SetDefault("KAFKA_WRITE_TIMEOUT", "10s")

	viper.SetDefault("CASSANDRA_HOST", "localhost")
	viper.SetDefault("CASSANDRA_KEYSPACE", "mindfeed")
	viper.SetDefault("CASSANDRA_TIMEOUT", "10s")
	viper.SetDefault("CASSANDRA_MIGRATIONS", "./migrations/cassandra")
	// Optional: Cassandra username/password/DC can be empty

	viper.SetDefault("CMS_DATASET", "production")
	viper.SetDefault("CMS_API_VERSION", "2024-01-01")
	viper.SetDefault("CMS_CACHE_PATH", "./data/content.db")
	viper.SetDefault("CMS_CACHE_TTL", "5m")

	// Load env variables
	viper.AutomaticEnv()

	// Optional config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	_ = viper.ReadInConfig() // ignore error if no file

	cfg = &Config{
		Mode:                viper.GetString("MODE"),
		ServerAddr:          viper.GetString("SERVER_ADDR"),
		WebAddr:             viper.GetString("WEB_ADDR"),
		TLSCert:             viper.GetString("TLS_CERT"),
		TLSKey:              viper.GetString("TLS_KEY"),
		JWTSecret:           viper.GetString("JWT_SECRET"),
		AccessTokenTTL:      parseDuration(viper.GetString("ACCESS_TOKEN_TTL"), time.Hour),
		RefreshTokenTTL:     parseDuration(viper.GetString("REFRESH_TOKEN_TTL"), 7*24*time.Hour),
		RotateRefresh:       viper.GetBool("ROTATE_REFRESH_TOKENS"),
		BackendURL:          strings.TrimRight(viper.GetString("BACKEND_URL"), "/"),
		GatewayTimeout:      parseDuration(viper.GetString("GATEWAY_TIMEOUT"), 15*time.Second),
		SingleUseRefresh:    viper.GetBool("SINGLE_USE_REFRESH"),
		CookieSecure:        viper.GetBool("COOKIE_SECURE"),
		CookieSameSite:      parseSameSite(viper.GetString("COOKIE_SAMESITE")),
		LoginPath:           viper.GetString("LOGIN_PATH"),
		KafkaBroker:         viper.GetString("KAFKA_BROKER"),
		KafkaTopic:          viper.GetString("KAFKA_TOPIC"),
		KafkaGroupID:        viper.GetString("KAFKA_GROUP_ID"),
		KafkaPartition:      viper.GetInt("KAFKA_PARTITION"),
		KafkaReadTO:         parseDuration(viper.GetString("KAFKA_READ_TIMEOUT"), 10*time.Second),
		KafkaWriteTO:        parseDuration(viper.GetString("KAFKA_WRITE_TIMEOUT"), 10*time.Second),
		CassandraHost:       viper.GetString("CASSANDRA_HOST"),
		CassandraKeyspace:   viper.GetString("CASSANDRA_KEYSPACE"),
		CassandraUsername:   viper.GetString("CASSANDRA_USERNAME"),
		CassandraPassword:   viper.GetString("CASSANDRA_PASSWORD"),
		CassandraTimeout:    parseDuration(viper.GetString("CASSANDRA_TIMEOUT"), 10*time.Second),
		CassandraDC:         viper.GetString("CASSANDRA_DC"),
		CassandraMigrations: viper.GetString("CASSANDRA_MIGRATIONS"),
		CMSProjectID:        viper.GetString("CMS_PROJECT_ID"),
		CMSDataset:          viper.GetString("CMS_DATASET"),
		CMSAPIVersion:       viper.GetString("CMS_API_VERSION"),
		CMSToken:            viper.GetString("CMS_TOKEN"),
		CMSCachePath:        viper.GetString("CMS_CACHE_PATH"),
		CMSCacheTTL:         parseDuration(viper.GetString("CMS_CACHE_TTL"), 5*time.Minute),
	}

	return cfg
}

func parseDuration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

// parseSameSite maps "strict" and "none" to their cookie modes; anything else is Lax.
func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// Get returns the loaded config instance
func Get() *Config {
	return cfg
}
