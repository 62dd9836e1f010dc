package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"secretari/internal/config"
	"secretari/internal/errors"
	"secretari/internal/ledger"
	"secretari/internal/model"
	"secretari/internal/repository"
	"secretari/internal/store"
)

// Profile holds the optional descriptive fields of an account.
type Profile struct {
	Email      string
	FamilyName string
	GivenName  string
	Template   map[string]interface{}
}

// RegisterInput is the payload of an account registration.
type RegisterInput struct {
	Username string
	Password string
	// FromContainerID names the temporary account the client used before
	// registering. Its balances move to the new account.
	FromContainerID string
	Profile
}

// UpdateInput lists the fields an update may change. Nil fields are left
// untouched; an empty Password keeps the stored hash.
type UpdateInput struct {
	Password   string
	Email      *string
	FamilyName *string
	GivenName  *string
	Template   map[string]interface{}

	// Admin only.
	Role         *string
	Subscription *bool
	TokenCount   map[string]int64
}

// AccountService manages user records and their token ledger.
type AccountService interface {
	Find(ctx context.Context, username string) (repository.Lookup, error)
	GetOrCreate(ctx context.Context, username string) (*model.UserRecord, error)
	Get(ctx context.Context, username string) (*model.UserRecord, error)
	List(ctx context.Context) ([]*model.UserRecord, error)
	CreateTemp(ctx context.Context, username string, profile Profile) (*model.UserRecord, error)
	Register(ctx context.Context, in RegisterInput) (*model.UserRecord, error)
	Update(ctx context.Context, username string, in UpdateInput, asAdmin bool) (*model.UserRecord, error)
	Delete(ctx context.Context, username string) error

	Bookkeep(ctx context.Context, username, modelName string, cost decimal.Decimal, tokens int64) (*model.UserRecord, error)
	SelectModel(ctx context.Context, username, requested string) (string, *model.UserRecord, error)
	RedeemCoupon(ctx context.Context, username, code string) (*model.UserRecord, error)
	UsageHistory(ctx context.Context, username string, limit int) ([]model.UsageEvent, error)
	IssueCoupons(ctx context.Context, coupons []model.Coupon) (int, error)
}

type accountService struct {
	records repository.UserRecordRepository
	usage   repository.UsageEventRepository
	coupons repository.CouponRepository
	journal *Journal
	session *store.Session
	catalog *config.Catalog
	now     func() time.Time
	// Mutex map for per-username locking
	userMutexes sync.Map
}

// NewAccountService creates a new account service.
func NewAccountService(
	records repository.UserRecordRepository,
	usage repository.UsageEventRepository,
	coupons repository.CouponRepository,
	journal *Journal,
	session *store.Session,
	catalog *config.Catalog,
) AccountService {
	return &accountService{
		records: records,
		usage:   usage,
		coupons: coupons,
		journal: journal,
		session: session,
		catalog: catalog,
		now:     time.Now,
	}
}

// getMutex returns a mutex for a specific username.
func (s *accountService) getMutex(username string) *sync.Mutex {
	value, _ := s.userMutexes.LoadOrStore(username, &sync.Mutex{})
	return value.(*sync.Mutex)
}

func (s *accountService) Find(ctx context.Context, username string) (repository.Lookup, error) {
	if err := s.session.Refresh(ctx); err != nil {
		return repository.Lookup{}, err
	}
	return s.records.Find(ctx, username)
}

// GetOrCreate returns the record of username, creating a temporary account
// with the default grants when none exists.
func (s *accountService) GetOrCreate(ctx context.Context, username string) (*model.UserRecord, error) {
	if strings.TrimSpace(username) == "" {
		return nil, errors.ErrInvalidInput
	}

	l, err := s.Find(ctx, username)
	if err != nil {
		return nil, err
	}
	if l.Found {
		return l.Record, nil
	}

	rec, _, err := s.records.Insert(ctx, model.NewUserRecord(username, s.catalog.DefaultGrants()))
	if err != nil {
		return nil, fmt.Errorf("create temp account: %w", err)
	}
	return rec, nil
}

// Get returns the record of username or ErrUserNotFound.
func (s *accountService) Get(ctx context.Context, username string) (*model.UserRecord, error) {
	l, err := s.Find(ctx, username)
	if err != nil {
		return nil, err
	}
	if !l.Found {
		return nil, errors.ErrUserNotFound
	}
	return l.Record, nil
}

func (s *accountService) List(ctx context.Context) ([]*model.UserRecord, error) {
	if err := s.session.Refresh(ctx); err != nil {
		return nil, err
	}
	return s.records.List(ctx)
}

// CreateTemp creates or returns a temporary account and applies the profile
// fields to a newly created one.
func (s *accountService) CreateTemp(ctx context.Context, username string, profile Profile) (*model.UserRecord, error) {
	mu := s.getMutex(username)
	mu.Lock()
	defer mu.Unlock()

	l, err := s.Find(ctx, username)
	if err != nil {
		return nil, err
	}
	if l.Found {
		return l.Record, nil
	}

	rec := model.NewUserRecord(username, s.catalog.DefaultGrants())
	applyProfile(rec, profile)
	stored, _, err := s.records.Insert(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("create temp account: %w", err)
	}
	return stored, nil
}

// Register turns a temporary account into a registered one, or creates a
// registered account from scratch.
func (s *accountService) Register(ctx context.Context, in RegisterInput) (*model.UserRecord, error) {
	if strings.TrimSpace(in.Username) == "" || in.Password == "" {
		return nil, errors.ErrInvalidInput
	}

	mu := s.getMutex(in.Username)
	mu.Lock()
	defer mu.Unlock()

	l, err := s.Find(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if l.Found && !l.Record.IsTemporary() {
		return nil, errors.ErrConflict
	}

	from := l.Record
	if from == nil && in.FromContainerID != "" {
		prev, err := s.records.FindByContainer(ctx, in.FromContainerID)
		if err != nil {
			return nil, err
		}
		if prev.Found && prev.Record.IsTemporary() {
			from = prev.Record
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	if from == nil {
		rec := model.NewUserRecord(in.Username, s.catalog.DefaultGrants())
		rec.HashedPassword = string(hash)
		applyProfile(rec, in.Profile)
		stored, created, err := s.records.Insert(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("create account: %w", err)
		}
		if created {
			return stored, nil
		}
		if !stored.IsTemporary() {
			return nil, errors.ErrConflict
		}
		// a temporary account appeared concurrently, migrate it
		from = stored
	}

	return s.migrate(ctx, in, from, string(hash))
}

// migrate copies the usage state of a temporary account into a new
// container for the registering user and releases the old one.
func (s *accountService) migrate(ctx context.Context, in RegisterInput, from *model.UserRecord, hash string) (*model.UserRecord, error) {
	rec := from.Clone()
	rec.Username = in.Username
	rec.HashedPassword = hash
	if rec.Role == "" {
		rec.Role = model.RoleUser
	}
	applyProfile(rec, in.Profile)

	moved, err := s.records.Relocate(ctx, rec, from)
	if err != nil {
		return nil, fmt.Errorf("migrate temp account: %w", err)
	}
	return moved, nil
}

// Update applies an explicit field merge to an existing record.
func (s *accountService) Update(ctx context.Context, username string, in UpdateInput, asAdmin bool) (*model.UserRecord, error) {
	mu := s.getMutex(username)
	mu.Lock()
	defer mu.Unlock()

	rec, err := s.Get(ctx, username)
	if err != nil {
		return nil, err
	}

	var hash string
	if in.Password != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		hash = string(b)
	}

	MergeUpdate(rec, in, hash, asAdmin)
	if err := s.records.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// MergeUpdate overlays in onto rec. hashedPassword replaces the stored hash
// only when non-empty. Role, subscription and balances change only for admins.
func MergeUpdate(rec *model.UserRecord, in UpdateInput, hashedPassword string, asAdmin bool) *model.UserRecord {
	if hashedPassword != "" {
		rec.HashedPassword = hashedPassword
	}
	if in.Email != nil {
		rec.Email = *in.Email
	}
	if in.FamilyName != nil {
		rec.FamilyName = *in.FamilyName
	}
	if in.GivenName != nil {
		rec.GivenName = *in.GivenName
	}
	if in.Template != nil {
		rec.Template = in.Template
	}

	if !asAdmin {
		return rec
	}
	if in.Role != nil && (*in.Role == model.RoleUser || *in.Role == model.RoleAdmin) {
		rec.Role = *in.Role
	}
	if in.Subscription != nil {
		rec.Subscription = *in.Subscription
	}
	if in.TokenCount != nil {
		rec.EnsureMaps()
		for m, n := range in.TokenCount {
			if n < 0 {
				n = 0
			}
			rec.TokenCount[m] = n
		}
	}
	return rec
}

// Delete removes the account. Deleting a missing account succeeds.
func (s *accountService) Delete(ctx context.Context, username string) error {
	mu := s.getMutex(username)
	mu.Lock()
	defer mu.Unlock()

	if err := s.session.Refresh(ctx); err != nil {
		return err
	}
	return s.records.Delete(ctx, username)
}

// Bookkeep charges one model call to username and journals it.
func (s *accountService) Bookkeep(ctx context.Context, username, modelName string, cost decimal.Decimal, tokens int64) (*model.UserRecord, error) {
	if cost.IsNegative() || tokens < 0 {
		return nil, errors.ErrInvalidAmount
	}

	mu := s.getMutex(username)
	mu.Lock()
	defer mu.Unlock()

	rec, err := s.Get(ctx, username)
	if err != nil {
		return nil, err
	}

	ledger.Charge(rec, modelName, cost, tokens, s.now())
	if err := s.records.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save charge: %w", err)
	}

	if s.journal != nil {
		s.journal.Record(ctx, model.UsageEvent{
			Username:    username,
			Model:       modelName,
			Cost:        cost,
			Tokens:      tokens,
			TokensLeft:  rec.TokenCount[modelName],
			MonthToDate: rec.CurrentUsage[modelName],
		})
	}
	return rec, nil
}

// SelectModel returns the model a request by username should be billed to.
func (s *accountService) SelectModel(ctx context.Context, username, requested string) (string, *model.UserRecord, error) {
	rec, err := s.GetOrCreate(ctx, username)
	if err != nil {
		return "", nil, err
	}
	m, err := ledger.CheckAffordability(rec, requested, s.catalog.FallbackModel)
	return m, rec, err
}

// RedeemCoupon credits the tokens of a single-use coupon to username.
func (s *accountService) RedeemCoupon(ctx context.Context, username, code string) (*model.UserRecord, error) {
	if code == "" {
		return nil, errors.ErrInvalidCoupon
	}
	if _, err := s.Get(ctx, username); err != nil {
		return nil, err
	}

	coupon, err := s.coupons.Redeem(ctx, code, username)
	if err != nil {
		return nil, err
	}

	mu := s.getMutex(username)
	mu.Lock()
	defer mu.Unlock()

	rec, err := s.Get(ctx, username)
	if err == nil {
		ledger.Credit(rec, coupon.Model, coupon.Tokens)
		err = s.records.Save(ctx, rec)
	}
	if err != nil {
		if rerr := s.coupons.Release(ctx, code); rerr != nil {
			return nil, fmt.Errorf("credit coupon: %w (release %s: %w)", err, code, rerr)
		}
		return nil, fmt.Errorf("credit coupon: %w", err)
	}
	return rec, nil
}

func (s *accountService) UsageHistory(ctx context.Context, username string, limit int) ([]model.UsageEvent, error) {
	return s.usage.ListByUsername(ctx, username, limit)
}

// IssueCoupons stores new coupons and returns how many were created. Coupons
// for models outside the catalog are rejected.
func (s *accountService) IssueCoupons(ctx context.Context, coupons []model.Coupon) (int, error) {
	count := 0
	for i := range coupons {
		c := coupons[i]
		if c.Code == "" || c.Tokens <= 0 || !s.catalog.Supports(c.Model) {
			return count, fmt.Errorf("coupon %q: %w", c.Code, errors.ErrInvalidInput)
		}
		if err := s.coupons.Create(ctx, &c); err != nil {
			return count, fmt.Errorf("issue coupon %s: %w", c.Code, err)
		}
		count++
	}
	return count, nil
}

func applyProfile(rec *model.UserRecord, p Profile) {
	if p.Email != "" {
		rec.Email = p.Email
	}
	if p.FamilyName != "" {
		rec.FamilyName = p.FamilyName
	}
	if p.GivenName != "" {
		rec.GivenName = p.GivenName
	}
	if p.Template != nil {
		rec.Template = p.Template
	}
}
