package crowdsale

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Crowdsale is the sale configuration: what is sold, at what price, and how
// many lamports the treasury has collected since the last withdrawal.
type Crowdsale struct {
	Address      solana.PublicKey `json:"address"`
	ID           solana.PublicKey `json:"id"`
	Cost         uint32           `json:"cost"`
	MintAccount  solana.PublicKey `json:"mint_account"`
	TokenAccount solana.PublicKey `json:"token_account"`
	Authority    solana.PublicKey `json:"authority"`
	Owner        solana.PublicKey `json:"owner"`
	Balance      uint64           `json:"balance"`
	TotalRaised  uint64           `json:"total_raised"`
	TokensSold   uint64           `json:"tokens_sold"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	Version      int              `json:"version"`
}

// Purchase records one buy_tokens call.
type Purchase struct {
	ID        string           `json:"id"`
	Crowdsale solana.PublicKey `json:"crowdsale"`
	Buyer     solana.PublicKey `json:"buyer"`
	Amount    uint32           `json:"amount"`
	Tokens    uint64           `json:"tokens"`
	Lamports  uint64           `json:"lamports"`
	Signature string           `json:"signature"`
	CreatedAt time.Time        `json:"created_at"`
}

// Withdrawal records one owner withdrawal.
type Withdrawal struct {
	ID        string           `json:"id"`
	Crowdsale solana.PublicKey `json:"crowdsale"`
	Owner     solana.PublicKey `json:"owner"`
	Lamports  uint64           `json:"lamports"`
	Signature string           `json:"signature"`
	CreatedAt time.Time        `json:"created_at"`
}
