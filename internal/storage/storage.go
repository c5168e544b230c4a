package storage

import (
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	// register postgresql driver
	_ "github.com/lib/pq"

	"github.com/brocaar/ttn-sensor-node/internal/config"
)

//go:embed migrations/*
var migrations embed.FS

var (
	redisClient redis.UniversalClient
	db          *sqlx.DB
	preferences Preferences
)

// Setup configures the storage backend.
func Setup(c config.Config) error {
	log.WithField("type", c.Storage.Type).Info("storage: setting up storage module")

	switch c.Storage.Type {
	case "", "memory":
		preferences = NewMemoryPreferences()
	case "redis":
		if err := setupRedis(c); err != nil {
			return err
		}
		preferences = NewRedisPreferences(redisClient, c.Redis.KeyPrefix)
	case "postgresql":
		if err := setupPostgreSQL(c); err != nil {
			return err
		}
		preferences = NewPostgreSQLPreferences(db)
	default:
		return fmt.Errorf("storage: unknown storage type: %s", c.Storage.Type)
	}

	return nil
}

func setupRedis(c config.Config) error {
	log.Info("storage: setting up Redis client")

	if c.Redis.URL != "" {
		opt, err := redis.ParseURL(c.Redis.URL)
		if err != nil {
			return errors.Wrap(err, "storage: parse redis url error")
		}
		redisClient = redis.NewClient(opt)
		return pingRedis()
	}

	if len(c.Redis.Servers) == 0 {
		return errors.New("at least one redis server must be configured")
	}

	var tlsConfig *tls.Config
	if c.Redis.TLSEnabled {
		tlsConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	if c.Redis.Cluster {
		redisClient = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:     c.Redis.Servers,
			PoolSize:  c.Redis.PoolSize,
			Password:  c.Redis.Password,
			TLSConfig: tlsConfig,
		})
	} else if c.Redis.MasterName != "" {
		redisClient = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       c.Redis.MasterName,
			SentinelAddrs:    c.Redis.Servers,
			SentinelPassword: c.Redis.Password,
			DB:               c.Redis.Database,
			PoolSize:         c.Redis.PoolSize,
			TLSConfig:        tlsConfig,
		})
	} else {
		redisClient = redis.NewClient(&redis.Options{
			Addr:      c.Redis.Servers[0],
			DB:        c.Redis.Database,
			Password:  c.Redis.Password,
			PoolSize:  c.Redis.PoolSize,
			TLSConfig: tlsConfig,
		})
	}

	return pingRedis()
}

func pingRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "storage: redis ping error")
	}
	return nil
}

func setupPostgreSQL(c config.Config) error {
	log.Info("storage: connecting to PostgreSQL")
	d, err := sqlx.Open("postgres", c.PostgreSQL.DSN)
	if err != nil {
		return errors.Wrap(err, "storage: PostgreSQL connection error")
	}
	d.SetMaxOpenConns(c.PostgreSQL.MaxOpenConnections)
	d.SetMaxIdleConns(c.PostgreSQL.MaxIdleConnections)
	for {
		if err := d.Ping(); err != nil {
			log.WithError(err).Warning("storage: ping PostgreSQL database error, will retry in 2s")
			time.Sleep(2 * time.Second)
		} else {
			break
		}
	}

	db = d

	if c.PostgreSQL.Automigrate {
		if err := MigrateUp(db); err != nil {
			return err
		}
	}

	return nil
}

// MigrateUp applies all the PostgreSQL schema migrations.
func MigrateUp(db *sqlx.DB) error {
	log.Info("storage: applying PostgreSQL schema migrations")

	m, err := newMigrate(db)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "storage: apply migrations error")
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return errors.Wrap(err, "storage: get migration version error")
	}

	log.WithFields(log.Fields{
		"version": version,
		"dirty":   dirty,
	}).Info("storage: PostgreSQL schema migrations applied")

	return nil
}

// MigrateDown reverts all the PostgreSQL schema migrations.
func MigrateDown(db *sqlx.DB) error {
	log.Info("storage: reverting PostgreSQL schema migrations")

	m, err := newMigrate(db)
	if err != nil {
		return err
	}

	if err := m.Down(); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "storage: revert migrations error")
	}

	return nil
}

func newMigrate(db *sqlx.DB) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "storage: migrate postgres driver error")
	}

	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, "storage: new migrate iofs error")
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, errors.Wrap(err, "storage: new migrate instance error")
	}

	return m, nil
}

// Transaction wraps the given function in a transaction. In case the given
// functions returns an error, the transaction will be rolled back.
func Transaction(ctx context.Context, db *sqlx.DB, f func(tx sqlx.ExtContext) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "storage: begin transaction error")
	}

	err = f(tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrap(rbErr, "storage: transaction rollback error")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "storage: transaction commit error")
	}
	return nil
}

// GetRedisKey returns the Redis key given a template and parameters.
func GetRedisKey(tmpl string, params ...interface{}) string {
	return fmt.Sprintf(tmpl, params...)
}

// RedisClient returns the Redis client (nil when Redis is not used).
func RedisClient() redis.UniversalClient {
	return redisClient
}

// DB returns the PostgreSQL database object (nil when PostgreSQL is not used).
func DB() *sqlx.DB {
	return db
}

// Prefs returns the configured Preferences store.
func Prefs() Preferences {
	return preferences
}

// SetPrefs sets the Preferences store.
func SetPrefs(p Preferences) {
	preferences = p
}
