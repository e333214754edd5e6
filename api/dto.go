package api

import (
	"github.com/gagliardetto/solana-go"

	"api_crowdsale/internal/host"
)

// signedRequest carries the caller's signature over the instruction.
type signedRequest struct {
	Signer    string `json:"signer" validate:"required,pubkey"`
	Signature string `json:"signature" validate:"required,signature"`
	Nonce     string `json:"nonce" validate:"required,max=128"`
}

// authorization assumes the request already passed validation.
func (r signedRequest) authorization() host.Authorization {
	return host.Authorization{
		Signer:    solana.MustPublicKeyFromBase58(r.Signer),
		Signature: solana.MustSignatureFromBase58(r.Signature),
		Nonce:     r.Nonce,
	}
}

type initializeRequest struct {
	signedRequest
	ID   string `json:"id" validate:"required,pubkey"`
	Mint string `json:"mint" validate:"required,pubkey"`
	Cost uint32 `json:"cost" validate:"gt=0"`
}

type buyTokensRequest struct {
	signedRequest
	Amount uint32 `json:"amount" validate:"gt=0"`
}

type withdrawRequest struct {
	signedRequest
}

type airdropRequest struct {
	Lamports uint64 `json:"lamports" validate:"gt=0,lte=100000000000"`
}

type createMintRequest struct {
	Authority string `json:"authority" validate:"required,pubkey"`
	Decimals  uint8  `json:"decimals" validate:"lte=18"`
}

type mintToRequest struct {
	signedRequest
	Owner  string `json:"owner" validate:"required,pubkey"`
	Amount uint64 `json:"amount" validate:"gt=0"`
}

type accountResponse struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
}

type tokenBalanceResponse struct {
	Mint   string `json:"mint"`
	Owner  string `json:"owner"`
	Amount uint64 `json:"amount"`
}
