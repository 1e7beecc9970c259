package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"posengine/backend/internal/cache"
	"posengine/backend/internal/domain"
	"posengine/backend/internal/logging"
	"posengine/backend/internal/metrics"
	"posengine/backend/internal/store"
)

type identityContextKey struct{}

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(domain.Identity)
	return identity, ok
}

type Options struct {
	Cache          cache.Cache
	CacheTTL       time.Duration
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	ReceiptBaseURL string
	// AtomicStock prefers store.StockDecrementer over read-then-write.
	AtomicStock bool
	Now         func() time.Time
	// TerminalIdleTTL drops terminal sessions unused for this long.
	TerminalIdleTTL time.Duration
	// MaxTerminalsPerUser caps open sessions per cashier.
	MaxTerminalsPerUser int
}

type Service struct {
	repo           store.Repository
	cache          cache.Cache
	cacheTTL       time.Duration
	group          singleflight.Group
	logger         *zap.Logger
	metrics        *metrics.Metrics
	receiptBaseURL string
	atomicStock    bool
	now            func() time.Time

	terminalsMu     sync.Mutex
	terminals       map[string]*Terminal
	terminalIdleTTL time.Duration
	maxTerminals    int
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TerminalIdleTTL <= 0 {
		opts.TerminalIdleTTL = 12 * time.Hour
	}
	if opts.MaxTerminalsPerUser <= 0 {
		opts.MaxTerminalsPerUser = 8
	}

	return &Service{
		repo:           repo,
		cache:          opts.Cache,
		cacheTTL:       opts.CacheTTL,
		logger:         logging.OrNop(opts.Logger),
		metrics:        opts.Metrics,
		receiptBaseURL: strings.TrimRight(opts.ReceiptBaseURL, "/"),
		atomicStock:    opts.AtomicStock,
		now:            opts.Now,
		terminals:      make(map[string]*Terminal),

		terminalIdleTTL: opts.TerminalIdleTTL,
		maxTerminals:    opts.MaxTerminalsPerUser,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.ProductSnapshot, error) {
	identity, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	products, err := s.repo.ListActiveProducts(ctx, identity.BusinessID)
	if err != nil {
		return nil, persistence("list products", err)
	}
	return products, nil
}

// Business loads a business profile through the cache. Concurrent misses
// for the same business share one store read.
func (s *Service) Business(ctx context.Context, businessID string) (domain.Business, error) {
	key := cache.BusinessKey(businessID)

	var cached domain.Business
	if ok, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Debug("business cache read failed", zap.String("business_id", businessID), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		business, err := s.repo.GetBusiness(ctx, businessID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, key, business, s.cacheTTL); err != nil {
			s.logger.Warn("business cache write failed", zap.String("business_id", businessID), zap.Error(err))
		}
		return business, nil
	})
	if err != nil {
		return domain.Business{}, err
	}
	return v.(domain.Business), nil
}

func (s *Service) location(business domain.Business) *time.Location {
	name := strings.TrimSpace(business.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		s.logger.Warn("unknown business timezone, using UTC",
			zap.String("business_id", business.ID),
			zap.String("timezone", name),
		)
		return time.UTC
	}
	return loc
}

func requireIdentity(ctx context.Context) (domain.Identity, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok || identity.BusinessID == "" || identity.UserID == "" {
		return domain.Identity{}, domain.ErrMissingIdentity
	}
	return identity, nil
}

func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
