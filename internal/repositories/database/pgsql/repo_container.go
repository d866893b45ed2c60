package pgsql

import (
	"github.com/jackc/pgx/v5/pgxpool"

	portsrepo "github.com/ilpaylabs/ilpay_backend/internal/core/ports/repositories"
)

func NewRepositoryProvider(dbPool *pgxpool.Pool) portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		LedgerRepo:   newPgxLedgerRepository(dbPool),
		PaymentRepo:  newPgxPaymentRepository(dbPool),
		ProgressRepo: newPgxProgressRepository(dbPool),
	}
}
