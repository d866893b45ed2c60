package mapping

import (
	"github.com/ilpaylabs/ilpay_backend/internal/core/domain"
	"github.com/ilpaylabs/ilpay_backend/internal/models"
)

// ToModelAccount flattens a ledger account into its row representation.
// The posted balance lives only in the store, so it is not mapped here.
func ToModelAccount(d domain.LedgerAccount) models.Account {
	return models.Account{
		AccountID:       d.AccountID,
		AssetCode:       d.Asset.Code,
		AssetScale:      int16(d.Asset.Scale),
		Kind:            string(d.Kind),
		ParentAccountID: optString(d.ParentAccountID),
		AuditFields: models.AuditFields{
			CreatedAt:     d.CreatedAt,
			LastUpdatedAt: d.LastUpdatedAt,
		},
	}
}

func ToDomainAccount(m models.Account) domain.LedgerAccount {
	return domain.LedgerAccount{
		AccountID:       m.AccountID,
		Asset:           domain.Asset{Code: m.AssetCode, Scale: uint8(m.AssetScale)},
		Kind:            domain.AccountKind(m.Kind),
		ParentAccountID: derefString(m.ParentAccountID),
		AuditFields: domain.AuditFields{
			CreatedAt:     m.CreatedAt,
			LastUpdatedAt: m.LastUpdatedAt,
		},
	}
}

func ToModelTransfer(d domain.Transfer) models.Transfer {
	return models.Transfer{
		TransferID:      d.TransferID,
		DebitAccountID:  d.DebitAccountID,
		CreditAccountID: d.CreditAccountID,
		Amount:          int64(d.Amount),
		Kind:            string(d.Kind),
		State:           string(d.State),
		ExpiresAt:       d.ExpiresAt,
		AuditFields: models.AuditFields{
			CreatedAt:     d.CreatedAt,
			LastUpdatedAt: d.LastUpdatedAt,
		},
	}
}

func ToDomainTransfer(m models.Transfer) domain.Transfer {
	return domain.Transfer{
		TransferID:      m.TransferID,
		DebitAccountID:  m.DebitAccountID,
		CreditAccountID: m.CreditAccountID,
		Amount:          uint64(m.Amount),
		Kind:            domain.TransferKind(m.Kind),
		State:           domain.TransferState(m.State),
		ExpiresAt:       m.ExpiresAt,
		AuditFields: domain.AuditFields{
			CreatedAt:     m.CreatedAt,
			LastUpdatedAt: m.LastUpdatedAt,
		},
	}
}

func ToDomainProgress(m models.PaymentProgress) domain.PaymentProgress {
	return domain.PaymentProgress{
		PaymentID:       m.PaymentID,
		AmountSent:      uint64(m.AmountSent),
		AmountDelivered: uint64(m.AmountDelivered),
		AuditFields: domain.AuditFields{
			CreatedAt:     m.CreatedAt,
			LastUpdatedAt: m.LastUpdatedAt,
		},
	}
}
