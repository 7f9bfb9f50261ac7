package core

// Account holds a participant's token balance and replay-protection nonce.
// A missing account is treated as the zero value for reads; it is created
// in storage on first credit.
type Account struct {
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}
