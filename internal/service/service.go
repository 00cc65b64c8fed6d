package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/emiac1617/payment-reconciliation/internal/cache"
	"github.com/emiac1617/payment-reconciliation/internal/domain"
	"github.com/emiac1617/payment-reconciliation/internal/provider"
	"github.com/emiac1617/payment-reconciliation/internal/reconcile"
	"github.com/emiac1617/payment-reconciliation/internal/store"
	"github.com/emiac1617/payment-reconciliation/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	// CacheTTL bounds both the shared source cache entry and the lifetime of
	// the in-process snapshot.
	CacheTTL     time.Duration
	Location     *time.Location
	Placeholders reconcile.PlaceholderPolicy
	Logger       *logrus.Entry
	Now          func() time.Time
}

type Service struct {
	orders      store.OrderStore
	providers   store.ProviderStore
	creditNotes store.CreditNoteStore
	cache       cache.SourceCache
	registry    *provider.Registry
	enricher    reconcile.Enricher
	ttl         time.Duration
	loc         *time.Location
	log         *logrus.Entry
	now         func() time.Time

	group singleflight.Group

	// srcMu orders shared cache reads and writes against the invalidation
	// done by an adjustment. It is taken before mu.
	srcMu sync.Mutex

	mu       sync.RWMutex
	snap     *Snapshot
	gen      uint64
	edits    map[string]pendingEdit
	inflight map[uint64]int
}

// pendingEdit is an adjustment a build that started before it must replay.
type pendingEdit struct {
	gen uint64
	adj domain.OrderAdjustment
}

func New(orders store.OrderStore, providers store.ProviderStore, creditNotes store.CreditNoteStore, sourceCache cache.SourceCache, registry *provider.Registry, opts Options) *Service {
	if sourceCache == nil {
		sourceCache = cache.NoopSourceCache{}
	}
	if registry == nil {
		registry = provider.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Placeholders == nil {
		opts.Placeholders = reconcile.DefaultPlaceholders{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}

	return &Service{
		orders:      orders,
		providers:   providers,
		creditNotes: creditNotes,
		cache:       sourceCache,
		registry:    registry,
		enricher: reconcile.Enricher{
			Registry:     registry,
			Placeholders: opts.Placeholders,
			Location:     opts.Location,
		},
		ttl:      opts.CacheTTL,
		loc:      opts.Location,
		log:      opts.Logger.WithField("component", "service"),
		now:      opts.Now,
		edits:    make(map[string]pendingEdit),
		inflight: make(map[uint64]int),
	}
}

// Snapshot is one computed reconciliation. It is never mutated after
// publication; adjustments publish a patched copy.
type Snapshot struct {
	ID           string
	LoadedAt     time.Time
	EditsEnabled bool
	Orders       []domain.Order
	Tables       reconcile.Tables
	CreditNotes  []domain.CreditNote
	Records      []domain.ReconciliationRecord

	orderIdx     reconcile.OrderIndex
	providerIdx  reconcile.ProviderIndex
	recordPos    map[string]int
	linked       []domain.LinkedCreditNote
	// notesByOrder maps an order_id to its offsets in linked.
	notesByOrder map[string][]int
}

type SnapshotInfo struct {
	ID           string    `json:"id"`
	LoadedAt     time.Time `json:"loaded_at"`
	EditsEnabled bool      `json:"edits_enabled"`
	Orders       int       `json:"orders"`
	Records      int       `json:"records"`
	CreditNotes  int       `json:"credit_notes"`
}

func (s *Snapshot) Info() SnapshotInfo {
	return SnapshotInfo{
		ID:           s.ID,
		LoadedAt:     s.LoadedAt,
		EditsEnabled: s.EditsEnabled,
		Orders:       len(s.Orders),
		Records:      len(s.Records),
		CreditNotes:  len(s.CreditNotes),
	}
}

// Load returns the current snapshot, building it when none exists or the
// existing one has outlived the cache TTL.
func (s *Service) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	if snap != nil && s.now().Sub(snap.LoadedAt) < s.ttl {
		return snap, nil
	}
	return s.build(ctx, "load", false)
}

// Refresh bypasses both the snapshot and the source cache.
func (s *Service) Refresh(ctx context.Context) (SnapshotInfo, error) {
	snap, err := s.build(ctx, "refresh", true)
	if err != nil {
		return SnapshotInfo{}, err
	}
	return snap.Info(), nil
}

func (s *Service) build(ctx context.Context, key string, force bool) (*Snapshot, error) {
	resultChan := s.group.DoChan(key, func() (interface{}, error) {
		return s.rebuild(context.WithoutCancel(ctx), force)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (s *Service) rebuild(ctx context.Context, force bool) (*Snapshot, error) {
	var src *domain.SourceSnapshot

	s.srcMu.Lock()
	gen := s.beginBuild()
	if !force {
		cached, ok, err := s.cache.Get(ctx, cache.SourcesKey)
		switch {
		case err != nil:
			s.log.WithError(err).Warn("source cache read failed")
		case ok:
			src = cached
		}
	}
	s.srcMu.Unlock()
	defer s.endBuild(gen)

	if src == nil {
		fetched, err := s.fetch(ctx)
		if err != nil {
			return nil, err
		}
		src = fetched
		s.storeSources(ctx, gen, src)
	}

	snap := s.compute(src)
	s.mu.Lock()
	replayed := 0
	for _, edit := range s.edits {
		if edit.gen <= gen {
			continue
		}
		if next, _, ok := snap.withAdjustment(edit.adj); ok {
			snap = next
			replayed++
		}
	}
	s.snap = snap
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"snapshot":      snap.ID,
		"orders":        len(snap.Orders),
		"edits_enabled": snap.EditsEnabled,
		"replayed":      replayed,
		"forced":        force,
	}).Info("reconciliation snapshot built")
	return snap, nil
}

// storeSources writes src to the shared cache unless an adjustment landed
// after gen, in which case src may predate the persisted row.
func (s *Service) storeSources(ctx context.Context, gen uint64, src *domain.SourceSnapshot) {
	s.srcMu.Lock()
	defer s.srcMu.Unlock()

	s.mu.RLock()
	current := s.gen
	s.mu.RUnlock()
	if current != gen {
		s.log.WithField("generation", current).Debug("source cache write skipped, adjustment applied during fetch")
		return
	}
	if err := s.cache.Set(ctx, cache.SourcesKey, src, s.ttl); err != nil {
		s.log.WithError(err).Warn("source cache write failed")
	}
}

func (s *Service) beginBuild() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[s.gen]++
	return s.gen
}

func (s *Service) endBuild(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[gen]--; s.inflight[gen] <= 0 {
		delete(s.inflight, gen)
	}
	s.pruneEditsLocked()
}

// pruneEditsLocked drops edits no running build can miss: those at or below
// the oldest in-flight generation, or all of them when nothing is building.
func (s *Service) pruneEditsLocked() {
	if len(s.inflight) == 0 {
		clear(s.edits)
		return
	}
	oldest := s.gen
	for gen := range s.inflight {
		oldest = min(oldest, gen)
	}
	for id, edit := range s.edits {
		if edit.gen <= oldest {
			delete(s.edits, id)
		}
	}
}

// fetch reads every source in parallel. Only an orders failure is fatal.
func (s *Service) fetch(ctx context.Context) (*domain.SourceSnapshot, error) {
	names := s.registry.Names()
	var (
		orders       []domain.RawRecord
		notes        []domain.CreditNote
		editsEnabled bool
		tables       = make([][]domain.RawRecord, len(names))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.orders.GetOrders(gctx)
		if err != nil {
			return fmt.Errorf("fetch orders: %w", err)
		}
		orders = rows
		return nil
	})
	g.Go(func() error {
		ok, err := s.orders.ColumnsExist(gctx, "orders", store.ReconciliationColumns)
		if err != nil {
			s.log.WithError(err).Warn("reconciliation column probe failed, edits disabled")
			return nil
		}
		editsEnabled = ok
		return nil
	})
	for i, name := range names {
		g.Go(func() error {
			rows, err := s.providers.GetProviderRecords(gctx, name)
			if err != nil {
				s.log.WithError(err).WithField("provider", name).Warn("provider fetch failed, treating table as empty")
				return nil
			}
			tables[i] = rows
			return nil
		})
	}
	if s.creditNotes != nil {
		g.Go(func() error {
			rows, err := s.creditNotes.GetCreditNotes(gctx)
			if err != nil {
				s.log.WithError(err).Warn("credit notes fetch failed, continuing without them")
				return nil
			}
			notes = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	src := &domain.SourceSnapshot{
		Orders:       orders,
		Tables:       make(map[string][]domain.RawRecord, len(names)),
		CreditNotes:  notes,
		EditsEnabled: editsEnabled,
		FetchedAt:    s.now().UTC(),
	}
	for i, name := range names {
		if tables[i] == nil {
			tables[i] = []domain.RawRecord{}
		}
		src.Tables[name] = tables[i]
	}
	if src.CreditNotes == nil {
		src.CreditNotes = []domain.CreditNote{}
	}
	return src, nil
}

func (s *Service) compute(src *domain.SourceSnapshot) *Snapshot {
	tables := reconcile.Tables(src.Tables)
	orders := s.enricher.Enrich(src.Orders, tables)
	records := reconcile.Reconcile(orders, reconcile.Aggregate(s.registry, tables))

	snap := &Snapshot{
		ID:           xid.New("snap"),
		LoadedAt:     s.now(),
		EditsEnabled: src.EditsEnabled,
		Orders:       orders,
		Tables:       tables,
		CreditNotes:  src.CreditNotes,
		Records:      records,
		providerIdx:  reconcile.IndexProviders(s.registry, tables),
	}
	snap.index()
	return snap
}

func (snap *Snapshot) index() {
	snap.orderIdx = reconcile.NewOrderIndex(snap.Orders)
	snap.recordPos = make(map[string]int, len(snap.Records))
	for i, rec := range snap.Records {
		if _, seen := snap.recordPos[rec.OrderID]; !seen {
			snap.recordPos[rec.OrderID] = i
		}
	}
	snap.linked = reconcile.LinkCreditNotes(snap.CreditNotes, snap.orderIdx)
	snap.notesByOrder = make(map[string][]int)
	for i, linked := range snap.linked {
		if linked.Order != nil {
			snap.notesByOrder[linked.Order.OrderID] = append(snap.notesByOrder[linked.Order.OrderID], i)
		}
	}
}

// withAdjustment returns a copy of snap with one record, its order and the
// credit notes linked to that order patched from adj. Indexes are shared with
// snap since no position changes.
func (snap *Snapshot) withAdjustment(adj domain.OrderAdjustment) (*Snapshot, domain.ReconciliationRecord, bool) {
	pos, ok := snap.recordPos[adj.OrderID]
	if !ok {
		return snap, domain.ReconciliationRecord{}, false
	}

	next := *snap
	next.Records = append([]domain.ReconciliationRecord(nil), snap.Records...)
	rec := next.Records[pos]
	rec.AdjustedAmount = adj.AdjustedAmount
	rec.Remark = adj.Remark
	rec = reconcile.Settle(rec)
	next.Records[pos] = rec

	i, ok := snap.orderIdx.Position(adj.OrderID)
	if !ok {
		return &next, rec, true
	}
	next.Orders = append([]domain.Order(nil), snap.Orders...)
	next.Orders[i].AdjustedAmount = adj.AdjustedAmount
	next.Orders[i].Remark = adj.Remark
	next.orderIdx = snap.orderIdx.WithOrders(next.Orders)

	if notes := snap.notesByOrder[adj.OrderID]; len(notes) > 0 {
		next.linked = append([]domain.LinkedCreditNote(nil), snap.linked...)
		for _, n := range notes {
			order := next.Orders[i]
			next.linked[n].Order = &order
		}
	}
	return &next, rec, true
}
