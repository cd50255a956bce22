package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"soci/internal/amqp"
	"soci/internal/cache"
	"soci/internal/core"
	"soci/internal/ledger"
	"soci/internal/log"
)

var (
	// ErrValidation marks input refused at the boundary.
	ErrValidation = errors.New("validation failed")
	// ErrOverdraw marks a dividend larger than the partner's available balance.
	ErrOverdraw       = errors.New("dividend exceeds available balance")
	ErrUnknownPartner = errors.New("partner not in roster")
	ErrDuplicateID    = ledger.ErrDuplicateID
)

// Publisher announces committed ledger changes.
type Publisher interface {
	PublishLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error
}

type Options struct {
	Roster        core.Roster
	Tax           core.TaxConfig
	Publisher     Publisher
	Cache         cache.Cache[core.Financials]
	AllowOverdraw bool
	Logger        *log.Logger
	Now           func() time.Time
	NewID         func() string
}

// LedgerService is the only writer of the ledger. It validates input against
// the roster, commits through the store, announces changes and serves
// memoised financials.
type LedgerService struct {
	store         ledger.Store
	roster        core.Roster
	tax           core.TaxConfig
	publisher     Publisher
	cache         cache.Cache[core.Financials]
	allowOverdraw bool
	logger        *log.Logger
	events        *log.StructuredLogger
	now           func() time.Time
	newID         func() string

	// writes are serialised so validation and commit see the same ledger
	writeMu   sync.Mutex
	group     singleflight.Group
	configKey string
}

func NewLedgerService(store ledger.Store, opts Options) (*LedgerService, error) {
	if err := opts.Roster.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Tax.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	logger := opts.Logger.WithComponent(log.ComponentLedger)
	return &LedgerService{
		store:         store,
		roster:        opts.Roster,
		tax:           opts.Tax,
		publisher:     opts.Publisher,
		cache:         opts.Cache,
		allowOverdraw: opts.AllowOverdraw,
		logger:        logger,
		events:        log.NewStructuredLogger(logger),
		now:           opts.Now,
		newID:         opts.NewID,
		configKey:     configKey(opts.Roster, opts.Tax),
	}, nil
}

func (s *LedgerService) Roster() core.Roster { return s.roster }
func (s *LedgerService) Tax() core.TaxConfig { return s.tax }

func (s *LedgerService) Snapshot(ctx context.Context) (core.Ledger, error) {
	return s.store.Snapshot(ctx)
}

func (s *LedgerService) Revision(ctx context.Context) (int64, error) {
	return s.store.Revision(ctx)
}

// CreateProject records a project. Missing id, type, status and creation time are filled in.
func (s *LedgerService) CreateProject(ctx context.Context, p core.Project) (core.Project, error) {
	if p.ID == "" {
		p.ID = s.newID()
	}
	if p.Status == "" {
		p.Status = core.StatusActive
	}
	if p.Type == "" {
		p.Type = core.ProjectOther
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	if err := p.Validate(); err != nil {
		return core.Project{}, invalid(err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	l, err := s.store.Snapshot(ctx)
	if err != nil {
		return core.Project{}, err
	}
	if l.HasProject(p.ID) {
		return core.Project{}, invalid(fmt.Errorf("%w: project %s", ErrDuplicateID, p.ID))
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return core.Project{}, fmt.Errorf("create project: %w", err)
	}
	s.committed(ctx, amqp.KindProject, p.ID)
	return p, nil
}

// RecordPayment appends a payment against an existing project.
func (s *LedgerService) RecordPayment(ctx context.Context, p core.Payment) (core.Payment, error) {
	if p.ID == "" {
		p.ID = s.newID()
	}
	if p.Distributions == nil {
		p.Distributions = []core.Distribution{}
	}
	if err := p.Validate(); err != nil {
		return core.Payment{}, invalid(err)
	}
	if err := s.checkPartners(p.Distributions); err != nil {
		return core.Payment{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	l, err := s.store.Snapshot(ctx)
	if err != nil {
		return core.Payment{}, err
	}
	if !l.HasProject(p.ProjectID) {
		return core.Payment{}, invalid(fmt.Errorf("%w: %w: %s", core.ErrMissingProject, ledger.ErrNotFound, p.ProjectID))
	}
	for _, existing := range l.Payments {
		if existing.ID == p.ID {
			return core.Payment{}, invalid(fmt.Errorf("%w: payment %s", ErrDuplicateID, p.ID))
		}
	}
	if err := s.store.RecordPayment(ctx, p); err != nil {
		return core.Payment{}, fmt.Errorf("record payment: %w", err)
	}
	s.committed(ctx, amqp.KindPayment, p.ID)
	return p, nil
}

// RecordExpense appends an expense. No distributions means equal split.
func (s *LedgerService) RecordExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if e.ID == "" {
		e.ID = s.newID()
	}
	if e.Distributions == nil {
		e.Distributions = []core.Distribution{}
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, invalid(err)
	}
	if err := s.checkPartners(e.Distributions); err != nil {
		return core.Expense{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	l, err := s.store.Snapshot(ctx)
	if err != nil {
		return core.Expense{}, err
	}
	for _, existing := range l.Expenses {
		if existing.ID == e.ID {
			return core.Expense{}, invalid(fmt.Errorf("%w: expense %s", ErrDuplicateID, e.ID))
		}
	}
	if err := s.store.RecordExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("record expense: %w", err)
	}
	s.committed(ctx, amqp.KindExpense, e.ID)
	return e, nil
}

// RecordDividend stamps tax at the configured rate and appends the payout.
// Unless overdraw is allowed, gross must not exceed the partner's balance.
func (s *LedgerService) RecordDividend(ctx context.Context, partnerID string, date core.Date, gross float64) (core.DividendPayout, error) {
	if !s.roster.Has(partnerID) {
		return core.DividendPayout{}, invalid(fmt.Errorf("%w: %s", ErrUnknownPartner, partnerID))
	}
	d := core.NewDividendPayout(s.newID(), partnerID, date, gross, s.tax.DividendRate)
	if err := d.Validate(); err != nil {
		return core.DividendPayout{}, invalid(err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !s.allowOverdraw {
		fin, err := s.Financials(ctx)
		if err != nil {
			return core.DividendPayout{}, err
		}
		available := core.AvailableBalance(fin, partnerID)
		if core.Cents(gross) > core.Cents(available) {
			return core.DividendPayout{}, fmt.Errorf("%w: %s requested %.2f, available %.2f",
				ErrOverdraw, partnerID, gross, available)
		}
	}
	if err := s.store.RecordDividend(ctx, d); err != nil {
		return core.DividendPayout{}, fmt.Errorf("record dividend: %w", err)
	}
	s.logger.InfoContext(ctx, "Dividend recorded",
		log.NewFields().WithPartner(partnerID, gross).WithEntity(amqp.KindDividend, d.ID).ToSlice()...)
	s.committed(ctx, amqp.KindDividend, d.ID)
	return d, nil
}

// Reset empties the ledger.
func (s *LedgerService) Reset(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.store.ResetLedger(ctx); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	s.committed(ctx, amqp.KindReset, "")
	return nil
}

// Export writes the interchange document for the current ledger.
func (s *LedgerService) Export(ctx context.Context, w io.Writer) error {
	l, err := s.store.Snapshot(ctx)
	if err != nil {
		return err
	}
	return ledger.Encode(w, l)
}

// Import replaces the ledger with an interchange document after validating
// it as strictly as individual records.
func (s *LedgerService) Import(ctx context.Context, r io.Reader) (core.Ledger, error) {
	l, err := ledger.Decode(r)
	if err != nil {
		return core.Ledger{}, invalid(err)
	}
	if err := s.ValidateLedger(l); err != nil {
		return core.Ledger{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.store.ReplaceLedger(ctx, l); err != nil {
		return core.Ledger{}, fmt.Errorf("import ledger: %w", err)
	}
	s.committed(ctx, amqp.KindImport, "")
	return l, nil
}

// ValidateLedger applies record validation and roster membership to a whole ledger.
func (s *LedgerService) ValidateLedger(l core.Ledger) error {
	if err := ledger.Validate(l); err != nil {
		return invalid(err)
	}
	for _, p := range l.Payments {
		if err := s.checkPartners(p.Distributions); err != nil {
			return fmt.Errorf("payment %s: %w", p.ID, err)
		}
	}
	for _, e := range l.Expenses {
		if err := s.checkPartners(e.Distributions); err != nil {
			return fmt.Errorf("expense %s: %w", e.ID, err)
		}
	}
	for _, d := range l.Dividends {
		if !s.roster.Has(d.PartnerID) {
			return invalid(fmt.Errorf("dividend %s: %w: %s", d.ID, ErrUnknownPartner, d.PartnerID))
		}
	}
	return nil
}

// Financials computes the current figures. Results are cached per ledger
// revision and configuration; concurrent callers share one computation.
func (s *LedgerService) Financials(ctx context.Context) (core.Financials, error) {
	rev, err := s.store.Revision(ctx)
	if err != nil {
		return core.Financials{}, fmt.Errorf("read revision: %w", err)
	}
	key := s.cacheKey(rev)
	if s.cache != nil {
		if f, ok := s.cache.Get(ctx, key); ok {
			return f, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.compute(ctx, rev, key)
	})
	if err != nil {
		return core.Financials{}, err
	}
	return v.(core.Financials), nil
}

func (s *LedgerService) compute(ctx context.Context, rev int64, key string) (core.Financials, error) {
	l, err := s.store.Snapshot(ctx)
	if err != nil {
		return core.Financials{}, fmt.Errorf("snapshot: %w", err)
	}
	f, err := core.ComputeFinancials(l, s.roster, s.tax)
	if err != nil {
		return core.Financials{}, err
	}
	// Only cache when no write slipped in between revision and snapshot.
	if s.cache != nil {
		if after, err := s.store.Revision(ctx); err == nil && after == rev {
			s.cache.Set(ctx, key, f)
		}
	}
	s.logger.DebugContext(ctx, "Financials computed",
		log.FieldRevision, rev, log.FieldCacheKey, key, log.FieldOperation, log.OpCompute)
	return f, nil
}

func (s *LedgerService) cacheKey(rev int64) string {
	return "fin:" + s.configKey + ":" + strconv.FormatInt(rev, 10)
}

func (s *LedgerService) checkPartners(ds []core.Distribution) error {
	for _, d := range ds {
		if !s.roster.Has(d.PartnerID) {
			return invalid(fmt.Errorf("%w: %s", ErrUnknownPartner, d.PartnerID))
		}
	}
	return nil
}

// committed logs and announces a mutation. Publishing is best effort.
func (s *LedgerService) committed(ctx context.Context, kind, id string) {
	rev, err := s.store.Revision(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Revision unavailable after commit", log.FieldError, err)
		return
	}
	s.events.LogLedgerChange(ctx, kind, id, rev)
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerChanged(ctx, amqp.NewLedgerChangedMessage(rev, kind, id)); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger change",
			log.FieldRevision, rev, log.FieldEntityKind, kind, log.FieldError, err)
	}
}

func invalid(err error) error {
	if errors.Is(err, ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

func configKey(r core.Roster, t core.TaxConfig) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%v|%v", r.String(), t.CorporateRate, t.DividendRate)))
	return hex.EncodeToString(sum[:6])
}
