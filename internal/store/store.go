// Package store archives decoded records to a local sqlite database. The
// archive is an observer of the record stream, not a delivery buffer:
// nothing is replayed from it.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/NotCoffee418/dbmigrator"
	_ "modernc.org/sqlite"

	"github.com/p1mqtt/p1mqtt/internal/event"
	"github.com/p1mqtt/p1mqtt/internal/p1"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type Store struct {
	db  *sql.DB
	log *slog.Logger
}

func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("could not open archive %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not open archive %s: %w", path, err)
	}

	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(db, migrationFS, "migrations")

	return &Store{db: db, log: log}, nil
}

func (s *Store) Save(rec *p1.Record) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("could not serialize fields: %w", err)
	}

	var telegramTS any
	if !rec.TelegramTime.IsZero() {
		telegramTS = rec.TelegramTime.Unix()
	}

	_, err = s.db.Exec(
		`INSERT INTO measurements (channel, device_id, telegram_timestamp, collector_timestamp, fields)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.Channel, rec.DeviceID, telegramTS, rec.CollectorTime.Unix(), string(fields),
	)
	if err != nil {
		return fmt.Errorf("could not insert measurement: %w", err)
	}
	return nil
}

// Run archives every record emitted until ctx is cancelled. Write failures
// are logged and skipped; the archive is best-effort.
func (s *Store) Run(ctx context.Context, emitter *event.Emitter) error {
	ch := emitter.Subscribe()
	defer emitter.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.Save(rec); err != nil {
				s.log.Info("archive write failed", slog.Any("error", err))
			}
		}
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}
