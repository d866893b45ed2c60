package domain

// PaymentProgress records how much of a payment has been sent and delivered so
// far. It shares the payment's ID, is written outside the payment's
// transaction, and both amounts are monotonically non-decreasing.
type PaymentProgress struct {
	PaymentID       string `json:"paymentID"`
	AmountSent      uint64 `json:"amountSent"`
	AmountDelivered uint64 `json:"amountDelivered"`
	AuditFields
}
