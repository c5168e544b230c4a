package storage

import (
	"context"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

// PostgreSQLPreferences implements a PostgreSQL backed Preferences store.
type PostgreSQLPreferences struct {
	db *sqlx.DB
}

// NewPostgreSQLPreferences returns a new PostgreSQLPreferences.
func NewPostgreSQLPreferences(db *sqlx.DB) *PostgreSQLPreferences {
	return &PostgreSQLPreferences{
		db: db,
	}
}

type preference struct {
	Key   string `db:"key"`
	Value []byte `db:"value"`
}

// Get returns the fields of the given namespace.
func (p *PostgreSQLPreferences) Get(ctx context.Context, namespace string) (map[string][]byte, error) {
	var items []preference
	err := sqlx.SelectContext(ctx, p.db, &items, `
		select
			key,
			value
		from
			preference
		where
			namespace = $1`,
		namespace,
	)
	if err != nil {
		return nil, handlePSQLError(err, "select error")
	}

	out := make(map[string][]byte, len(items))
	for _, item := range items {
		out[item.Key] = item.Value
	}

	return out, nil
}

// Put replaces the namespace with the given fields in a single transaction.
func (p *PostgreSQLPreferences) Put(ctx context.Context, namespace string, fields map[string][]byte) error {
	err := Transaction(ctx, p.db, func(tx sqlx.ExtContext) error {
		if _, err := tx.ExecContext(ctx, "delete from preference where namespace = $1", namespace); err != nil {
			return handlePSQLError(err, "delete error")
		}

		for k, v := range fields {
			_, err := tx.ExecContext(ctx, `
				insert into preference (
					namespace,
					key,
					value
				) values ($1, $2, $3)`,
				namespace,
				k,
				v,
			)
			if err != nil {
				return handlePSQLError(err, "insert error")
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	preferencesOperationCounter("postgresql", "put").Inc()
	log.WithFields(log.Fields{
		"namespace": namespace,
		"fields":    len(fields),
	}).Debug("storage: preferences saved in postgresql")

	return nil
}

// Clear removes the given namespace.
func (p *PostgreSQLPreferences) Clear(ctx context.Context, namespace string) error {
	if _, err := p.db.ExecContext(ctx, "delete from preference where namespace = $1", namespace); err != nil {
		return handlePSQLError(err, "delete error")
	}

	preferencesOperationCounter("postgresql", "clear").Inc()
	log.WithField("namespace", namespace).Debug("storage: preferences cleared in postgresql")

	return nil
}
