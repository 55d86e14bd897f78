package postgres

import (
	"log/slog"

	"github.com/skillforge/marketplace/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Packages      ports.PackageRepository
	Mints         ports.MintRepository
	Installations ports.InstallationRepository
	Knowledge     ports.KnowledgeRepository
	Subscriptions ports.SubscriptionRepository
	UsageLedger   ports.UsageLedgerRepository
	RoyaltyLedger ports.RoyaltyLedgerRepository
	InvocationLog ports.InvocationLogRepository
	Outbox        ports.OutboxRepository
	EventDedup    ports.EventDedupRepository
}

func NewRepositories(db *gorm.DB, logger *slog.Logger) Repositories {
	return Repositories{
		Packages:      &packageRepository{db: db},
		Mints:         &mintRepository{db: db},
		Installations: &installationRepository{db: db, logger: logger},
		Knowledge:     &knowledgeRepository{db: db},
		Subscriptions: &subscriptionRepository{db: db},
		UsageLedger:   &usageLedgerRepository{db: db},
		RoyaltyLedger: &royaltyLedgerRepository{db: db},
		InvocationLog: &invocationLogRepository{db: db},
		Outbox:        &outboxRepository{db: db},
		EventDedup:    &eventDedupRepository{db: db},
	}
}
