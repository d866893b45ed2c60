package services

import (
	"log/slog"

	"github.com/shopspring/decimal"

	portsrepo "github.com/ilpaylabs/ilpay_backend/internal/core/ports/repositories"
	portssvc "github.com/ilpaylabs/ilpay_backend/internal/core/ports/services"
	"github.com/ilpaylabs/ilpay_backend/internal/platform/config"
)

// ContainerDeps carries the external adapters the services are wired with.
type ContainerDeps struct {
	Rates      portssvc.RatesService
	Executor   portssvc.PaymentExecutor
	MakePlugin portssvc.PluginFactory
	Logger     *slog.Logger
}

// NewServiceContainer creates a new service container with properly initialized dependencies
func NewServiceContainer(cfg *config.Config, repos portsrepo.RepositoryProvider, deps ContainerDeps) *portssvc.ServiceContainer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	container := &portssvc.ServiceContainer{}

	// The accounting service has no dependency on the payment side; payments
	// depend on it for reservations and refunds.
	container.Accounting = NewAccountingService(repos.LedgerRepo, deps.Logger)
	container.Progress = NewProgressService(repos.ProgressRepo)
	container.Rates = deps.Rates

	container.Payment = NewPaymentService(PaymentServiceConfig{
		PaymentRepo:   repos.PaymentRepo,
		Accounting:    container.Accounting,
		Progress:      container.Progress,
		Rates:         deps.Rates,
		Executor:      deps.Executor,
		MakePlugin:    deps.MakePlugin,
		QuoteLifespan: cfg.QuoteLifespan,
		Slippage:      decimal.New(int64(cfg.SlippageBPS), -4),
		Logger:        deps.Logger,
	})

	return container
}
