package models

// Portfolio represents a Prime portfolio
type Portfolio struct {
	Id   string
	Name string
}

// Wallet represents a Prime wallet
type Wallet struct {
	Id     string
	Name   string
	Symbol string
	Type   string
}

// Withdrawal represents a Prime withdrawal transaction
type Withdrawal struct {
	ActivityId     string
	Asset          string
	Amount         string
	Destination    string
	IdempotencyKey string
}

// PrimeTransaction represents a transaction from the Prime API
type PrimeTransaction struct {
	Id             string `json:"id"`
	WalletId       string `json:"wallet_id"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	Symbol         string `json:"symbol"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}
