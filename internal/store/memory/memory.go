package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/emiac1617/payment-reconciliation/internal/domain"
	"github.com/emiac1617/payment-reconciliation/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	orders          []domain.RawRecord
	tables          map[string][]domain.RawRecord
	creditNotes     []domain.CreditNote
	columns         map[string][]string
	usersByUsername map[string]domain.UserAccount
}

// New builds a store over the given rows. The orders table is assumed to
// carry the reconciliation columns.
func New(orders []domain.RawRecord, tables map[string][]domain.RawRecord, notes []domain.CreditNote) *Store {
	s := &Store{
		orders:          cloneRows(orders),
		tables:          make(map[string][]domain.RawRecord, len(tables)),
		creditNotes:     make([]domain.CreditNote, 0, len(notes)),
		usersByUsername: make(map[string]domain.UserAccount),
	}
	for name, rows := range tables {
		s.tables[name] = cloneRows(rows)
	}
	for _, note := range notes {
		s.creditNotes = append(s.creditNotes, domain.CreditNote(note.Record().Clone()))
	}
	s.columns = map[string][]string{"orders": orderColumns(s.orders)}
	return s
}

func NewSeeded() *Store {
	s := New(seedOrders(), seedTables(), seedCreditNotes())
	s.usersByUsername = seedUsers()
	return s
}

// DropColumns removes columns from the reported orders schema, mimicking a
// database where the reconciliation migration has not run.
func (s *Store) DropColumns(table string, columns ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.columns[table] = slices.DeleteFunc(s.columns[table], func(c string) bool {
		return slices.Contains(columns, c)
	})
}

func (s *Store) GetOrders(_ context.Context) ([]domain.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRows(s.orders), nil
}

func (s *Store) UpdateOrder(_ context.Context, orderID string, adj domain.OrderAdjustment) (domain.OrderAdjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasColumns("orders", store.ReconciliationColumns) {
		return domain.OrderAdjustment{}, store.ErrSchemaMissing
	}

	for _, row := range s.orders {
		if row.String("order_id") != orderID {
			continue
		}
		row["adjusted_amount"] = adj.AdjustedAmount
		row["remark"] = adj.Remark
		return domain.OrderAdjustment{
			OrderID:        orderID,
			AdjustedAmount: row.Number("adjusted_amount"),
			Remark:         row.String("remark"),
		}, nil
	}
	return domain.OrderAdjustment{}, fmt.Errorf("%w: no records were updated, order id %q may not exist", store.ErrNotFound, orderID)
}

func (s *Store) ColumnsExist(_ context.Context, table string, columns []string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasColumns(table, columns), nil
}

func (s *Store) StoreColumn(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, candidate := range []string{"Store", "store"} {
		if slices.Contains(s.columns["orders"], candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

func (s *Store) GetProviderRecords(_ context.Context, provider string) ([]domain.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.tables[provider]
	if !ok {
		return nil, fmt.Errorf("%w: table %s", store.ErrNotFound, provider)
	}
	return cloneRows(rows), nil
}

func (s *Store) GetCreditNotes(_ context.Context) ([]domain.CreditNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CreditNote, 0, len(s.creditNotes))
	for _, note := range s.creditNotes {
		out = append(out, domain.CreditNote(note.Record().Clone()))
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("username already exists")
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		out = append(out, user)
	}
	slices.SortFunc(out, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	username = strings.ToLower(strings.TrimSpace(username))
	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) hasColumns(table string, columns []string) bool {
	have := s.columns[table]
	for _, c := range columns {
		if !slices.Contains(have, c) {
			return false
		}
	}
	return true
}

func orderColumns(rows []domain.RawRecord) []string {
	seen := map[string]bool{}
	for _, row := range rows {
		for k := range row {
			seen[k] = true
		}
	}
	for _, c := range store.ReconciliationColumns {
		seen[c] = true
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	slices.Sort(cols)
	return cols
}

func cloneRows(rows []domain.RawRecord) []domain.RawRecord {
	out := make([]domain.RawRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Clone())
	}
	return out
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_VIEWER_PASSWORD, with dev defaults otherwise.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	viewerPwd := envOr("SEED_VIEWER_PASSWORD", "viewer123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_VIEWER_PASSWORD") == "" {
		logrus.WithField("component", "store.memory").Warn("using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_VIEWER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"viewer", viewerPwd, "viewer"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.WithField("component", "store.memory").Fatalf("failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
