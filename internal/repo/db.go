package repo

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Default configuration values.
const (
	defaultRetryBackoff = time.Second
	defaultWarnAfter    = 60
	defaultSQLitePath   = "surveyor.db"
)

//go:embed migrations
var migrations embed.FS

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Dialect — SQL-диалект хранилища.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// driverName возвращает имя database/sql драйвера.
func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// Store — tracker store: единая точка сериализации для всех процессов.
//
// Все записи и чтения проходят через транзакции. Транзиентные ошибки
// блокировок (SQLite BUSY/LOCKED, Postgres serialization/deadlock/lock_not_available)
// приводят к полному откату и повтору с фиксированной паузой, без ограничения
// числа попыток.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	logger  *slog.Logger

	retryBackoff time.Duration
	warnAfter    int
	onRetry      func()
}

// Config — конфигурация Store.
type Config struct {
	// DSN — путь к файлу SQLite или postgres:// URL.
	DSN string

	// RetryBackoff — пауза между повторами транзакции (default: 1s).
	RetryBackoff time.Duration

	// WarnAfter — после скольких подряд неудач писать warning (default: 60).
	WarnAfter int

	// OnRetry вызывается на каждый повтор (метрики).
	OnRetry func()

	Logger *slog.Logger
}

// Open открывает хранилище и применяет миграции.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dialect, dsn := parseDSN(cfg.DSN)

	db, err := sqlx.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// Одно соединение на процесс: конкуренция между процессами
		// разрешается блокировками файла и повтором транзакций.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(30 * time.Second)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		db:           db,
		dialect:      dialect,
		logger:       logger,
		retryBackoff: cfg.RetryBackoff,
		warnAfter:    cfg.WarnAfter,
		onRetry:      cfg.OnRetry,
	}
	if s.retryBackoff <= 0 {
		s.retryBackoff = defaultRetryBackoff
	}
	if s.warnAfter <= 0 {
		s.warnAfter = defaultWarnAfter
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// parseDSN определяет диалект по DSN.
func parseDSN(dsn string) (Dialect, string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres, dsn
	case strings.HasPrefix(dsn, "sqlite://"):
		return DialectSQLite, strings.TrimPrefix(dsn, "sqlite://")
	case dsn == "":
		return DialectSQLite, defaultSQLitePath
	default:
		return DialectSQLite, dsn
	}
}

// Close закрывает соединения.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect возвращает диалект хранилища.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Ping проверяет доступность базы (для /healthz).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate применяет встроенные миграции для текущего диалекта.
func (s *Store) migrate(ctx context.Context) error {
	if s.dialect == DialectSQLite {
		for _, pragma := range []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA foreign_keys = ON",
		} {
			if _, err := s.db.ExecContext(ctx, pragma); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
	}

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	dir := path.Join("migrations", string(s.dialect))
	entries, err := migrations.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		version := migrationVersion(entry.Name())
		if entry.IsDir() || version <= 0 {
			continue
		}

		err := s.Transact(ctx, func(tx *sqlx.Tx) error {
			var applied int
			if err := tx.GetContext(ctx, &applied,
				tx.Rebind(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`), version); err != nil {
				return err
			}
			if applied > 0 {
				return nil
			}

			content, err := migrations.ReadFile(path.Join(dir, entry.Name()))
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, string(content)); err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO schema_migrations (version) VALUES (?)`), version)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion извлекает номер из имени файла ("001_init.sql" → 1).
func migrationVersion(name string) int {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(prefix)
	if err != nil {
		return 0
	}
	return n
}

// Transact выполняет fn в одной транзакции.
//
// Любая ошибка откатывает транзакцию целиком. Транзиентная ошибка
// повторяется бесконечно с паузой retryBackoff, пока не отменён ctx.
// fn может быть вызвана несколько раз и не должна иметь побочных
// эффектов вне транзакции.
func (s *Store) Transact(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	failures := 0
	for {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}

		failures++
		if s.onRetry != nil {
			s.onRetry()
		}
		if failures >= s.warnAfter {
			s.logger.Warn("tracker store still locked, retrying",
				"consecutive_failures", failures,
				"error", err,
			)
			failures = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryBackoff):
		}
	}
}

// runTx — одна попытка транзакции.
func (s *Store) runTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// isTransient проверяет, является ли ошибка временной блокировкой.
func isTransient(err error) bool {
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		switch coded.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
	}
	return false
}
