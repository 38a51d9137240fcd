package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Stmt — один SQL-оператор с плейсхолдерами `?`.
type Stmt struct {
	Query string
	Args  []any
}

// Q — короткий конструктор Stmt.
func Q(query string, args ...any) Stmt {
	return Stmt{Query: query, Args: args}
}

// Row — строка результата: имя колонки → значение.
type Row map[string]any

// Int64 возвращает значение колонки как int64.
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// String возвращает значение колонки как строку.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Result — результат Execute.
type Result struct {
	// LastInsertID — id из последнего INSERT ... RETURNING id.
	LastInsertID int64

	// Rows — строки последнего оператора, вернувшего строки.
	Rows []Row
}

// Execute выполняет операторы в одной транзакции.
//
// Либо фиксируются все операторы, либо ни один. Контракт повторов тот же,
// что у Transact.
func (s *Store) Execute(ctx context.Context, stmts ...Stmt) (Result, error) {
	var res Result
	err := s.Transact(ctx, func(tx *sqlx.Tx) error {
		res = Result{}
		for i, st := range stmts {
			query := tx.Rebind(st.Query)

			if !returnsRows(query) {
				if _, err := tx.ExecContext(ctx, query, st.Args...); err != nil {
					return fmt.Errorf("statement %d: %w", i, err)
				}
				continue
			}

			rows, err := queryRows(ctx, tx, query, st.Args)
			if err != nil {
				return fmt.Errorf("statement %d: %w", i, err)
			}
			res.Rows = rows
			if isInsert(query) && len(rows) > 0 {
				res.LastInsertID = rows[0].Int64("id")
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// queryRows читает все строки в []Row.
func queryRows(ctx context.Context, tx *sqlx.Tx, query string, args []any) ([]Row, error) {
	rows, err := tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return nil, err
		}
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				m[k] = string(b)
			}
		}
		out = append(out, Row(m))
	}
	return out, rows.Err()
}

func returnsRows(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(q, "SELECT") ||
		strings.HasPrefix(q, "WITH") ||
		strings.Contains(q, " RETURNING ")
}

func isInsert(query string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "INSERT")
}
