package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shaiso/Surveyor/internal/domain"
)

const requestColumns = `id, guid, status, size, details, created_at, updated_at`

// RequestRepo — репозиторий restore-запросов.
type RequestRepo struct {
	store *Store
}

// NewRequestRepo создаёт новый RequestRepo.
func NewRequestRepo(store *Store) *RequestRepo {
	return &RequestRepo{store: store}
}

// Create записывает новый restore в статусе waiting.
// Возвращает ErrAlreadyExists, если guid уже есть.
func (r *RequestRepo) Create(ctx context.Context, guid, details string) (*domain.Request, error) {
	var req domain.Request
	err := r.store.Transact(ctx, func(tx *sqlx.Tx) error {
		var n int
		if err := tx.GetContext(ctx, &n, tx.Rebind(`SELECT COUNT(*) FROM requests WHERE guid = ?`), guid); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: request %s", ErrAlreadyExists, guid)
		}

		now := time.Now().UTC()
		req = domain.Request{
			GUID:      guid,
			Status:    domain.RequestStatusWaiting,
			Details:   details,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.GetContext(ctx, &req.ID, tx.Rebind(`
			INSERT INTO requests (guid, status, details, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			RETURNING id`),
			req.GUID, req.Status, req.Details, req.CreatedAt, req.UpdatedAt,
		)
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetByGUID возвращает restore по guid.
func (r *RequestRepo) GetByGUID(ctx context.Context, guid string) (*domain.Request, error) {
	return r.get(ctx, `SELECT `+requestColumns+` FROM requests WHERE guid = ?`, guid)
}

// GetByID возвращает restore по id.
func (r *RequestRepo) GetByID(ctx context.Context, id int64) (*domain.Request, error) {
	return r.get(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
}

func (r *RequestRepo) get(ctx context.Context, query string, arg any) (*domain.Request, error) {
	var req domain.Request
	err := r.store.Transact(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &req, tx.Rebind(query), arg)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return &req, nil
}

// ListUnfinished возвращает все restore со статусом, отличным от finished.
// Используется при восстановлении после рестарта.
func (r *RequestRepo) ListUnfinished(ctx context.Context) ([]domain.Request, error) {
	var reqs []domain.Request
	err := r.store.Transact(ctx, func(tx *sqlx.Tx) error {
		reqs = nil
		return tx.SelectContext(ctx, &reqs, tx.Rebind(
			`SELECT `+requestColumns+` FROM requests WHERE status <> ? ORDER BY id`),
			domain.RequestStatusFinished,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("list unfinished requests: %w", err)
	}
	return reqs, nil
}

// RequestFilter — параметры фильтрации для List.
type RequestFilter struct {
	Status domain.RequestStatus
	Limit  int
	Offset int
}

// List возвращает restore с фильтрацией, новые первыми.
func (r *RequestRepo) List(ctx context.Context, filter RequestFilter) ([]domain.Request, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	var reqs []domain.Request
	err := r.store.Transact(ctx, func(tx *sqlx.Tx) error {
		reqs = nil
		return tx.SelectContext(ctx, &reqs, tx.Rebind(query), args...)
	})
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return reqs, nil
}

// Transition переводит restore в новый статус.
//
// Текущий статус перечитывается внутри транзакции; переход назад или
// из терминального статуса возвращает ErrInvalidState.
func (r *RequestRepo) Transition(ctx context.Context, guid string, next domain.RequestStatus, details string) error {
	return r.store.Transact(ctx, func(tx *sqlx.Tx) error {
		var current domain.RequestStatus
		err := tx.GetContext(ctx, &current, tx.Rebind(`SELECT status FROM requests WHERE guid = ?`), guid)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if !current.CanTransitionTo(next) {
			return fmt.Errorf("%w: request %s %s -> %s", ErrInvalidState, guid, current, next)
		}

		query := `UPDATE requests SET status = ?, updated_at = ? WHERE guid = ?`
		args := []any{next, time.Now().UTC(), guid}
		if details != "" {
			query = `UPDATE requests SET status = ?, details = ?, updated_at = ? WHERE guid = ?`
			args = []any{next, details, time.Now().UTC(), guid}
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(query), args...)
		return err
	})
}

// SetSize записывает суммарный размер restore.
func (r *RequestRepo) SetSize(ctx context.Context, guid string, size int64) error {
	_, err := r.store.Execute(ctx,
		Q(`UPDATE requests SET size = ?, updated_at = ? WHERE guid = ?`, size, time.Now().UTC(), guid),
	)
	if err != nil {
		return fmt.Errorf("set request size: %w", err)
	}
	return nil
}

// CountByStatus возвращает число restore по статусам.
func (r *RequestRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	res, err := r.store.Execute(ctx, Q(`SELECT status, COUNT(*) AS n FROM requests GROUP BY status`))
	if err != nil {
		return nil, fmt.Errorf("count requests: %w", err)
	}
	counts := make(map[string]int64, len(res.Rows))
	for _, row := range res.Rows {
		counts[row.String("status")] = row.Int64("n")
	}
	return counts, nil
}
