package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/emiac1617/payment-reconciliation/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrSchemaMissing = errors.New("reconciliation columns do not exist in the orders table")
	ErrUnknownColumn = errors.New("unknown column")
)

var ReconciliationColumns = []string{"adjusted_amount", "remark"}

type OrderStore interface {
	GetOrders(ctx context.Context) ([]domain.RawRecord, error)
	// UpdateOrder persists the two reconciliation columns and returns the stored row.
	UpdateOrder(ctx context.Context, orderID string, adj domain.OrderAdjustment) (domain.OrderAdjustment, error)
	ColumnsExist(ctx context.Context, table string, columns []string) (bool, error)
	// StoreColumn reports "Store" or "store", or "" when orders have neither.
	StoreColumn(ctx context.Context) (string, error)
}

type ProviderStore interface {
	GetProviderRecords(ctx context.Context, provider string) ([]domain.RawRecord, error)
}

type CreditNoteStore interface {
	GetCreditNotes(ctx context.Context) ([]domain.CreditNote, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	OrderStore
	ProviderStore
	CreditNoteStore
	UserStore
}

// FallbackCreditNotes reads credit notes from Primary and, when that is
// unset or fails, from Secondary.
type FallbackCreditNotes struct {
	Primary   CreditNoteStore
	Secondary CreditNoteStore
	Log       *logrus.Entry
}

func (f FallbackCreditNotes) GetCreditNotes(ctx context.Context) ([]domain.CreditNote, error) {
	if f.Primary != nil {
		notes, err := f.Primary.GetCreditNotes(ctx)
		if err == nil {
			return notes, nil
		}
		if f.Log != nil {
			f.Log.WithError(err).Warn("credit notes primary read failed, falling back to direct read")
		}
	}
	if f.Secondary == nil {
		return nil, fmt.Errorf("%w: no credit note source configured", ErrNotFound)
	}
	return f.Secondary.GetCreditNotes(ctx)
}
