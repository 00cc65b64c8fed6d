package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/emiac1617/payment-reconciliation/internal/cache"
	"github.com/emiac1617/payment-reconciliation/internal/domain"
	"github.com/emiac1617/payment-reconciliation/internal/store"
)

var validate = validator.New()

type adjustmentInput struct {
	OrderID string `validate:"required,max=128"`
	Remark  string `validate:"max=1000"`
}

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParseAmount reads the leading numeric prefix of raw ("12.5abc" is 12.5).
// Anything without one, or a non-finite result, is 0.
func ParseAmount(raw string) float64 {
	match := leadingNumber.FindString(strings.TrimSpace(raw))
	if match == "" {
		return 0
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// SaveAdjustment persists a manual correction for one order and publishes
// the patched record. A changed amount needs a non-blank remark.
func (s *Service) SaveAdjustment(ctx context.Context, orderID string, rawAmount domain.AmountInput, remark string) (domain.ReconciliationRecord, error) {
	input := adjustmentInput{OrderID: strings.TrimSpace(orderID), Remark: strings.TrimSpace(remark)}
	if err := validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return domain.ReconciliationRecord{}, &ValidationError{Message: fmt.Sprintf("%s failed %s validation", strings.ToLower(verrs[0].Field()), verrs[0].Tag())}
		}
		return domain.ReconciliationRecord{}, &ValidationError{Message: err.Error()}
	}

	snap, err := s.Load(ctx)
	if err != nil {
		return domain.ReconciliationRecord{}, err
	}
	if !snap.EditsEnabled {
		return domain.ReconciliationRecord{}, ErrEditsDisabled
	}
	pos, ok := snap.recordPos[input.OrderID]
	if !ok {
		return domain.ReconciliationRecord{}, fmt.Errorf("%w: order %s", store.ErrNotFound, input.OrderID)
	}
	current := snap.Records[pos]

	amount := ParseAmount(string(rawAmount))
	changed := !decimal.NewFromFloat(amount).Equal(decimal.NewFromFloat(current.AdjustedAmount))
	if changed && input.Remark == "" {
		return domain.ReconciliationRecord{}, ErrRemarkRequired
	}

	saved, err := s.orders.UpdateOrder(ctx, input.OrderID, domain.OrderAdjustment{
		OrderID:        input.OrderID,
		AdjustedAmount: amount,
		Remark:         input.Remark,
	})
	if err != nil {
		return domain.ReconciliationRecord{}, &PersistenceError{Err: err}
	}

	s.srcMu.Lock()
	patched, ok := s.applyAdjustment(saved)
	if err := s.cache.Delete(ctx, cache.SourcesKey); err != nil {
		s.log.WithError(err).Warn("source cache invalidation failed")
	}
	s.srcMu.Unlock()
	if !ok {
		return domain.ReconciliationRecord{}, fmt.Errorf("%w: order %s", store.ErrNotFound, input.OrderID)
	}

	fields := logrus.Fields{
		"order_id":        saved.OrderID,
		"adjusted_amount": saved.AdjustedAmount,
		"status":          patched.Status,
	}
	if actor, ok := ActorFromContext(ctx); ok {
		fields["actor"] = actor.Username
	}
	s.log.WithFields(fields).Info("adjustment saved")
	return patched, nil
}

// applyAdjustment publishes a patched copy of the current snapshot and
// records the edit so builds already fetching replay it. Callers hold srcMu.
func (s *Service) applyAdjustment(saved domain.OrderAdjustment) (domain.ReconciliationRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.edits[saved.OrderID] = pendingEdit{gen: s.gen, adj: saved}
	s.pruneEditsLocked()

	if s.snap == nil {
		return domain.ReconciliationRecord{}, false
	}
	next, rec, ok := s.snap.withAdjustment(saved)
	if !ok {
		return domain.ReconciliationRecord{}, false
	}
	s.snap = next
	return rec, true
}
