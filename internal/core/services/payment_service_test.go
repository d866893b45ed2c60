package services_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/ilpaylabs/ilpay_backend/internal/apperrors"
	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
	portssvc "github.com/ilpaylabs/ilpay_backend/internal/core/ports/services"
)

type PaymentServiceTestSuite struct {
	suite.Suite
	f paymentFixture
}

func (s *PaymentServiceTestSuite) SetupTest() {
	s.f.setup(s.T())
}

func (s *PaymentServiceTestSuite) amountToSend(v uint64) *uint64 {
	return &v
}

func (s *PaymentServiceTestSuite) TestCreateValidation() {
	cases := []struct {
		name    string
		options portssvc.CreatePaymentOptions
	}{
		{
			name:    "missing funding account",
			options: portssvc.CreatePaymentOptions{PaymentPointer: "$x/alice", AmountToSend: s.amountToSend(100)},
		},
		{
			name:    "neither pointer nor invoice",
			options: portssvc.CreatePaymentOptions{SuperAccountID: s.f.wallet.AccountID},
		},
		{
			name: "both pointer and invoice",
			options: portssvc.CreatePaymentOptions{
				SuperAccountID: s.f.wallet.AccountID,
				PaymentPointer: "$x/alice",
				InvoiceURL:     "https://x/invoices/1",
			},
		},
		{
			name: "pointer without amount",
			options: portssvc.CreatePaymentOptions{
				SuperAccountID: s.f.wallet.AccountID,
				PaymentPointer: "$x/alice",
			},
		},
		{
			name: "pointer with zero amount",
			options: portssvc.CreatePaymentOptions{
				SuperAccountID: s.f.wallet.AccountID,
				PaymentPointer: "$x/alice",
				AmountToSend:   s.amountToSend(0),
			},
		},
		{
			name: "invoice with amount",
			options: portssvc.CreatePaymentOptions{
				SuperAccountID: s.f.wallet.AccountID,
				InvoiceURL:     "https://x/invoices/1",
				AmountToSend:   s.amountToSend(100),
			},
		},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.f.service.Create(s.f.ctx, tc.options)
			s.ErrorIs(err, apperrors.ErrValidation)
		})
	}
}

func (s *PaymentServiceTestSuite) TestCreateUnknownFundingAccount() {
	_, err := s.f.service.Create(s.f.ctx, portssvc.CreatePaymentOptions{
		SuperAccountID: uuid.NewString(),
		PaymentPointer: "$x/alice",
		AmountToSend:   s.amountToSend(100),
	})
	s.ErrorIs(err, domain.TransferErrUnknownAccount)
}

func (s *PaymentServiceTestSuite) TestCreatePersistsInactivePayment() {
	created, err := s.f.service.Create(s.f.ctx, portssvc.CreatePaymentOptions{
		SuperAccountID: s.f.wallet.AccountID,
		PaymentPointer: "$receiver.example/alice",
		AmountToSend:   s.amountToSend(250),
		AutoApprove:    true,
	})
	s.Require().NoError(err)

	s.Equal(domain.PaymentStateInactive, created.State)
	s.Equal(uint64(250), *created.Intent.AmountToSend)
	s.True(created.Intent.AutoApprove)
	s.Equal(s.f.executor.destination.AccountURL, created.DestinationAccount.URL)
	s.Equal(s.f.executor.destination.Asset, created.DestinationAccount.Asset)

	// The payment owns a fresh sub-account under the funding account.
	sub, err := s.f.ledger.FindAccountByID(s.f.ctx, created.SourceAccount.ID)
	s.Require().NoError(err)
	s.Equal(domain.AccountKindPayment, sub.Kind)
	s.Equal(s.f.wallet.AccountID, sub.ParentAccountID)

	// Destination resolution connected a plugin and released it again.
	s.Require().Len(s.f.plugins, 1)
	s.False(s.f.plugins[0].IsConnected())

	stored, err := s.f.service.Get(s.f.ctx, created.PaymentID)
	s.Require().NoError(err)
	s.Equal(created.PaymentID, stored.PaymentID)
	s.Equal(domain.PaymentStateInactive, stored.State)
}

func (s *PaymentServiceTestSuite) TestCreateFailsWhenDestinationUnresolvable() {
	s.f.executor.setupErr = domain.PaymentErrQueryFailed

	_, err := s.f.service.Create(s.f.ctx, portssvc.CreatePaymentOptions{
		SuperAccountID: s.f.wallet.AccountID,
		PaymentPointer: "$receiver.example/alice",
		AmountToSend:   s.amountToSend(100),
	})
	s.ErrorIs(err, domain.PaymentErrQueryFailed)
	s.Empty(s.f.repo.payments)
}

func (s *PaymentServiceTestSuite) TestGetUnknownPayment() {
	_, err := s.f.service.Get(s.f.ctx, uuid.NewString())
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *PaymentServiceTestSuite) TestActivateReadyPayment() {
	seeded := s.f.seedPayment(domain.PaymentStateReady, func(p *domain.OutgoingPayment) {
		p.Quote = testQuote(400, 360)
		p.Attempts = 2
	})

	s.Require().NoError(s.f.service.Activate(s.f.ctx, seeded.PaymentID))

	payment := s.f.reload(seeded.PaymentID)
	s.Equal(domain.PaymentStateActivated, payment.State)
	s.Equal(0, payment.Attempts)
}

func (s *PaymentServiceTestSuite) TestActivateRejectsWrongState() {
	seeded := s.f.seedPayment(domain.PaymentStateInactive, nil)

	err := s.f.service.Activate(s.f.ctx, seeded.PaymentID)
	s.ErrorIs(err, apperrors.ErrConflict)
	s.Contains(err.Error(), string(domain.PaymentStateInactive))
	s.Equal(domain.PaymentStateInactive, s.f.reload(seeded.PaymentID).State)
}

func (s *PaymentServiceTestSuite) TestCancelReadyPayment() {
	seeded := s.f.seedPayment(domain.PaymentStateReady, func(p *domain.OutgoingPayment) {
		p.Quote = testQuote(400, 360)
	})

	s.Require().NoError(s.f.service.Cancel(s.f.ctx, seeded.PaymentID))

	payment := s.f.reload(seeded.PaymentID)
	s.Equal(domain.PaymentStateCancelling, payment.State)
	s.Equal(string(domain.PaymentErrCancelledByAPI), payment.Error)
}

func (s *PaymentServiceTestSuite) TestCancelRejectsWrongState() {
	seeded := s.f.seedPayment(domain.PaymentStateCompleted, nil)

	err := s.f.service.Cancel(s.f.ctx, seeded.PaymentID)
	s.ErrorIs(err, apperrors.ErrConflict)
	s.Contains(err.Error(), string(domain.PaymentStateCompleted))
}

func (s *PaymentServiceTestSuite) TestRequoteCancelledPayment() {
	seeded := s.f.seedPayment(domain.PaymentStateCancelled, func(p *domain.OutgoingPayment) {
		p.Quote = testQuote(400, 360)
		p.Error = string(domain.PaymentErrQuoteExpired)
	})

	s.Require().NoError(s.f.service.Requote(s.f.ctx, seeded.PaymentID))

	payment := s.f.reload(seeded.PaymentID)
	s.Equal(domain.PaymentStateInactive, payment.State)
	s.Nil(payment.Quote)
	s.Empty(payment.Error)
}

func (s *PaymentServiceTestSuite) TestRequoteRejectsWrongState() {
	seeded := s.f.seedPayment(domain.PaymentStateSending, func(p *domain.OutgoingPayment) {
		p.Quote = testQuote(400, 360)
	})

	err := s.f.service.Requote(s.f.ctx, seeded.PaymentID)
	s.ErrorIs(err, apperrors.ErrConflict)
	s.Contains(err.Error(), string(domain.PaymentStateSending))
}

func (s *PaymentServiceTestSuite) TestOperatorActionsUnknownPayment() {
	s.ErrorIs(s.f.service.Activate(s.f.ctx, uuid.NewString()), apperrors.ErrNotFound)
	s.ErrorIs(s.f.service.Cancel(s.f.ctx, uuid.NewString()), apperrors.ErrNotFound)
	s.ErrorIs(s.f.service.Requote(s.f.ctx, uuid.NewString()), apperrors.ErrNotFound)
}

func TestPaymentServiceTestSuite(t *testing.T) {
	suite.Run(t, new(PaymentServiceTestSuite))
}
