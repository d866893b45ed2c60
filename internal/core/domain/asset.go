package domain

// Asset identifies a currency or unit of account. Amounts are integers in the
// asset's minor unit at the given scale. Immutable once an account references it.
type Asset struct {
	Code  string `json:"code"`
	Scale uint8  `json:"scale"`
}
