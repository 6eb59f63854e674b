package store

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	config "example.com/mindfeed/internal/init"
	"example.com/mindfeed/internal/logger"
	"example.com/mindfeed/internal/models"
	"github.com/gocql/gocql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/cassandra"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

var logg = logger.New()

// --- Interfaces ---

type SessionInterface interface {
	Query(stmt string, values ...interface{}) *gocql.Query
	NewBatch(batchType gocql.BatchType) *gocql.Batch
	ExecuteBatch(batch *gocql.Batch) error
	Close()
}

// StoreInterface is everything the backend API and the fan-out worker need.
// Lookups of missing rows return models.ErrNotFound unless noted otherwise.
type StoreInterface interface {
	// users
	CreateUser(user models.User, passwordHash string) (string, error)
	GetUser(userID string) (models.User, error)
	GetUserIDByUsername(username string) (string, error)
	GetUserIDByEmail(email string) (string, error)
	GetPasswordHash(userID string) (string, error)
	UpdateUser(user models.User) error
	ListUsers(limit int) ([]models.User, error)

	// follows
	CreateFollow(userID, followeeID, profileImage string) error
	DeleteFollow(userID, followeeID string) error
	IsFollowing(userID, followeeID string) (bool, error)
	GetFollowers(userID string) ([]string, error)
	GetFollowing(userID string) ([]string, error)

	// posts and feeds
	AddPost(post models.Post) error
	GetPost(postID string) (models.Post, error)
	UpdatePost(post models.Post) error
	DeletePost(post models.Post) error
	AddToFeed(userID string, post models.Post) error
	RemoveFromFeed(userID string, post models.Post) error
	GetFeed(userID string, limit int) ([]models.Post, error)

	// engagement
	LikePost(postID, userID string) (bool, error)
	UnlikePost(postID, userID string) (bool, error)
	HasLiked(postID, userID string) (bool, error)
	AddRetweet(retweet models.Post) (bool, error)
	RemoveRetweet(retweet models.Post) error
	HasRetweeted(postID, userID string) (bool, error)
	HasPlainRetweeted(postID, userID string) (bool, error)
	GetRetweeters(postID string) ([]string, error)
	GetCounters(postID string) (models.Counters, error)

	// comments
	AddComment(c models.Comment) error
	GetComments(postID string) ([]models.Comment, error)

	Close()
}

// --- Store Implementation ---

type Store struct {
	Session SessionInterface
}

// New initializes Cassandra connection using config package.
func New() (StoreInterface, error) {
	cfg := config.Get()
	if len(cassandraHosts(cfg)) == 0 {
		return nil, errors.New("CASSANDRA_HOST is empty")
	}

	if err := ensureKeyspace(cfg); err != nil {
		return nil, fmt.Errorf("failed to ensure keyspace: %w", err)
	}

	if err := runMigrations(cfg); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cluster := newCluster(cfg, cfg.CassandraKeyspace)
	cluster.Consistency = gocql.Quorum
	// LWTs guard usernames, plain retweets and likes
	cluster.SerialConsistency = gocql.LocalSerial
	if cfg.CassandraDC != "" {
		cluster.PoolConfig.HostSelectionPolicy = gocql.DCAwareRoundRobinPolicy(cfg.CassandraDC)
		cluster.HostFilter = gocql.DataCentreHostFilter(cfg.CassandraDC)
	}

	sess, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Cassandra session: %w", err)
	}

	logg.Info("store", "Connected to Cassandra keyspace (host anonymized)")
	return &Store{Session: sess}, nil
}

// --- Ensure keyspace exists before migrations ---

// cassandraHosts splits CASSANDRA_HOST on commas.
func cassandraHosts(cfg *config.Config) []string {
	var hosts []string
	for _, h := range strings.Split(cfg.CassandraHost, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func newCluster(cfg *config.Config, keyspace string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cassandraHosts(cfg)...)
	cluster.Keyspace = keyspace
	cluster.Timeout = cfg.CassandraTimeout
	cluster.ConnectTimeout = cfg.CassandraTimeout
	if cfg.CassandraUsername != "" && cfg.CassandraPassword != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.CassandraUsername,
			Password: cfg.CassandraPassword,
		}
	}
	return cluster
}

func ensureKeyspace(cfg *config.Config) error {
	cluster := newCluster(cfg, "system")
	sess, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("failed to connect to Cassandra system keyspace: %w", err)
	}
	defer sess.Close()

	query := fmt.Sprintf(`
        CREATE KEYSPACE IF NOT EXISTS %s
        WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1};
    `, cfg.CassandraKeyspace)

	if err := sess.Query(query).Exec(); err != nil {
		return fmt.Errorf("failed to create keyspace: %w", err)
	}

	logg.Info("store", "Ensured Cassandra keyspace exists (keyspace name anonymized)")
	return nil
}

// --- Migration runner ---

func runMigrations(cfg *config.Config) error {
	sourceURL := fmt.Sprintf("file://%s", cfg.CassandraMigrations)
	params := url.Values{}
	params.Set("x-migrations-table", "schema_migrations")
	params.Set("x-multi-statement", "true")
	if d := cfg.CassandraTimeout; d > 0 {
		params.Set("timeout", d.String())
	}
	if cfg.CassandraUsername != "" && cfg.CassandraPassword != "" {
		params.Set("username", cfg.CassandraUsername)
		params.Set("password", cfg.CassandraPassword)
	}
	// golang-migrate talks to a single contact point
	dbURL := fmt.Sprintf("cassandra://%s/%s?%s", cassandraHosts(cfg)[0], cfg.CassandraKeyspace, params.Encode())

	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logg.Info("store", "No new migrations to apply")
	} else {
		logg.Info("store", "Migrations applied successfully")
	}
	return nil
}

// Close gracefully closes Cassandra session.
func (s *Store) Close() {
	if s.Session != nil {
		s.Session.Close()
		logg.Info("store", "Cassandra session closed")
	}
}

func notFound(err error) error {
	if errors.Is(err, gocql.ErrNotFound) {
		return models.ErrNotFound
	}
	return err
}
