package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emiac1617/payment-reconciliation/internal/domain"
	"github.com/emiac1617/payment-reconciliation/internal/store"
)

const (
	codeUndefinedTable  = "42P01"
	codeUndefinedColumn = "42703"
	codeUniqueViolation = "23505"
)

type Store struct {
	pool   *pgxpool.Pool
	tables map[string]bool
}

// New connects to databaseURL. Only table names listed in providerTables can
// be read through GetProviderRecords.
func New(ctx context.Context, databaseURL string, providerTables []string) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: parse config: %w", err)
	}
	config.MaxConns = 30
	config.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store/postgres: ping: %w", err)
	}

	allowed := make(map[string]bool, len(providerTables))
	for _, name := range providerTables {
		allowed[name] = true
	}
	return &Store{pool: pool, tables: allowed}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) GetOrders(ctx context.Context) ([]domain.RawRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT * FROM orders`)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: select orders: %w", err)
	}
	return collectRecords(rows)
}

func (s *Store) UpdateOrder(ctx context.Context, orderID string, adj domain.OrderAdjustment) (domain.OrderAdjustment, error) {
	var (
		saved  domain.OrderAdjustment
		remark *string
	)
	err := s.pool.QueryRow(ctx, `
		UPDATE orders
		SET adjusted_amount = $1, remark = $2
		WHERE order_id = $3
		RETURNING order_id, COALESCE(adjusted_amount, 0)::float8, remark
	`, adj.AdjustedAmount, adj.Remark, orderID).Scan(&saved.OrderID, &saved.AdjustedAmount, &remark)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OrderAdjustment{}, fmt.Errorf("%w: no records were updated, order id %q may not exist", store.ErrNotFound, orderID)
		}
		if pgCode(err) == codeUndefinedColumn {
			return domain.OrderAdjustment{}, store.ErrSchemaMissing
		}
		return domain.OrderAdjustment{}, err
	}
	if remark != nil {
		saved.Remark = *remark
	}
	return saved, nil
}

func (s *Store) ColumnsExist(ctx context.Context, table string, columns []string) (bool, error) {
	present, err := s.existingColumns(ctx, table, columns)
	if err != nil {
		return false, err
	}
	return len(present) == len(columns), nil
}

func (s *Store) StoreColumn(ctx context.Context) (string, error) {
	present, err := s.existingColumns(ctx, "orders", []string{"Store", "store"})
	if err != nil {
		return "", err
	}
	for _, candidate := range []string{"Store", "store"} {
		if present[candidate] {
			return candidate, nil
		}
	}
	return "", nil
}

func (s *Store) existingColumns(ctx context.Context, table string, columns []string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1 AND column_name = ANY($2)
	`, table, columns)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: inspect columns: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(names))
	for _, name := range names {
		present[name] = true
	}
	return present, nil
}

func (s *Store) GetProviderRecords(ctx context.Context, provider string) ([]domain.RawRecord, error) {
	if !s.tables[provider] {
		return nil, fmt.Errorf("%w: table %s", store.ErrNotFound, provider)
	}
	rows, err := s.pool.Query(ctx, `SELECT * FROM `+pgx.Identifier{provider}.Sanitize())
	if err != nil {
		if pgCode(err) == codeUndefinedTable {
			return nil, fmt.Errorf("%w: table %s", store.ErrNotFound, provider)
		}
		return nil, fmt.Errorf("store/postgres: select %s: %w", provider, err)
	}
	return collectRecords(rows)
}

func (s *Store) GetCreditNotes(ctx context.Context) ([]domain.CreditNote, error) {
	rows, err := s.pool.Query(ctx, `SELECT * FROM credit_notes`)
	if err != nil {
		if pgCode(err) == codeUndefinedTable {
			return nil, fmt.Errorf("%w: table credit_notes", store.ErrNotFound)
		}
		return nil, fmt.Errorf("store/postgres: select credit_notes: %w", err)
	}
	records, err := collectRecords(rows)
	if err != nil {
		return nil, err
	}
	notes := make([]domain.CreditNote, 0, len(records))
	for _, rec := range records {
		notes = append(notes, domain.CreditNote(rec))
	}
	return notes, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return fmt.Errorf("username and password are required")
	}
	if user.Role == "" {
		user.Role = "viewer"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return fmt.Errorf("username already exists")
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("username and password are required")
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// collectRecords decodes every row of a SELECT * into a RawRecord keyed by
// column name.
func collectRecords(rows pgx.Rows) ([]domain.RawRecord, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	records := make([]domain.RawRecord, 0, 64)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rec := make(domain.RawRecord, len(fields))
		for i, fd := range fields {
			rec[fd.Name] = normalizeValue(values[i])
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case [16]byte:
		return uuid.UUID(val).String()
	case []byte:
		return string(val)
	default:
		return val
	}
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
