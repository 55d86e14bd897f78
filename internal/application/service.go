package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
)

type Service struct {
	cfg           Config
	logger        *slog.Logger
	packages      ports.PackageRepository
	mints         ports.MintRepository
	installations ports.InstallationRepository
	knowledge     ports.KnowledgeRepository
	subscriptions ports.SubscriptionRepository
	usageLedger   ports.UsageLedgerRepository
	royaltyLedger ports.RoyaltyLedgerRepository
	invocationLog ports.InvocationLogRepository
	outbox        ports.OutboxRepository
	eventDedup    ports.EventDedupRepository
	cache         ports.Cache
	envelope      ports.Envelope
	secure        ports.SecureContexts
	remote        ports.Reasoner
	offline       ports.Reasoner
	tokens        ports.TokenVerifier
	nowFn         func() time.Time
}

type Dependencies struct {
	Config          Config
	Logger          *slog.Logger
	Packages        ports.PackageRepository
	Mints           ports.MintRepository
	Installations   ports.InstallationRepository
	Knowledge       ports.KnowledgeRepository
	Subscriptions   ports.SubscriptionRepository
	UsageLedger     ports.UsageLedgerRepository
	RoyaltyLedger   ports.RoyaltyLedgerRepository
	InvocationLog   ports.InvocationLogRepository
	Outbox          ports.OutboxRepository
	EventDedup      ports.EventDedupRepository
	Cache           ports.Cache
	Envelope        ports.Envelope
	Secure          ports.SecureContexts
	RemoteReasoner  ports.Reasoner
	OfflineReasoner ports.Reasoner
	Tokens          ports.TokenVerifier
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "skill-marketplace"
	}
	if cfg.OveragePriceCents <= 0 {
		cfg.OveragePriceCents = 5
	}
	if cfg.CreatorShare.IsZero() {
		cfg.CreatorShare = decimal.NewFromFloat(0.70)
	}
	if cfg.TierCallLimits == nil {
		cfg.TierCallLimits = map[domain.Tier]int64{
			domain.TierPro:       1000,
			domain.TierEpic:      10000,
			domain.TierLegendary: 0,
		}
	}
	if cfg.PackageCacheTTL <= 0 {
		cfg.PackageCacheTTL = 5 * time.Minute
	}
	if cfg.SearchCacheTTL <= 0 {
		cfg.SearchCacheTTL = 30 * time.Second
	}
	if cfg.EventDedupTTL <= 0 {
		cfg.EventDedupTTL = 7 * 24 * time.Hour
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		cfg:           cfg,
		logger:        logger,
		packages:      deps.Packages,
		mints:         deps.Mints,
		installations: deps.Installations,
		knowledge:     deps.Knowledge,
		subscriptions: deps.Subscriptions,
		usageLedger:   deps.UsageLedger,
		royaltyLedger: deps.RoyaltyLedger,
		invocationLog: deps.InvocationLog,
		outbox:        deps.Outbox,
		eventDedup:    deps.EventDedup,
		cache:         deps.Cache,
		envelope:      deps.Envelope,
		secure:        deps.Secure,
		remote:        deps.RemoteReasoner,
		offline:       deps.OfflineReasoner,
		tokens:        deps.Tokens,
		nowFn:         func() time.Time { return time.Now().UTC() },
	}
}

// ValidateToken authenticates a bearer token for the transport layer.
func (s *Service) ValidateToken(_ context.Context, raw string) (ports.AuthClaims, error) {
	return s.tokens.Verify(raw)
}
