// Package client talks to the crowdsale API. Program instructions are
// signed locally and only the signature travels over the wire.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"resty.dev/v3"

	"api_crowdsale/internal/crowdsale"
	"api_crowdsale/internal/host"
)

// APIError is the error body returned by the API.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	// validation failures use "message" instead of "error"
	Reason string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

type Client struct {
	http *resty.Client
	key  solana.PrivateKey
}

// New creates a client for baseURL that signs with key.
func New(baseURL string, key solana.PrivateKey) *Client {
	return &Client{
		http: resty.New().SetBaseURL(baseURL).SetTimeout(15 * time.Second),
		key:  key,
	}
}

func (c *Client) Close() error {
	return c.http.Close()
}

func (c *Client) PublicKey() solana.PublicKey {
	return c.key.PublicKey()
}

type signedBody struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
	Nonce     string `json:"nonce"`
}

func (c *Client) sign(ix host.Instruction) (signedBody, error) {
	ix.Nonce = uuid.NewString()
	if err := ix.Sign(c.key); err != nil {
		return signedBody{}, fmt.Errorf("failed to sign %s: %w", ix.Name, err)
	}
	return signedBody{Signer: ix.Signer.String(), Signature: ix.Signature.String(), Nonce: ix.Nonce}, nil
}

// ProgramID asks the server which program it hosts.
func (c *Client) ProgramID(ctx context.Context) (solana.PublicKey, error) {
	var out struct {
		ProgramID string `json:"program_id"`
	}
	if err := c.do(ctx, http.MethodGet, "/ping", nil, &out); err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBase58(out.ProgramID)
}

func (c *Client) Initialize(ctx context.Context, programID, id, mint solana.PublicKey, cost uint32) (*crowdsale.Crowdsale, error) {
	auth, err := c.sign(crowdsale.InitializeInstruction(programID, id, mint, cost, ""))
	if err != nil {
		return nil, err
	}
	body := struct {
		signedBody
		ID   string `json:"id"`
		Mint string `json:"mint"`
		Cost uint32 `json:"cost"`
	}{auth, id.String(), mint.String(), cost}

	var out crowdsale.Crowdsale
	if err := c.do(ctx, http.MethodPost, "/crowdsales", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) BuyTokens(ctx context.Context, programID, address solana.PublicKey, amount uint32) (*crowdsale.Purchase, error) {
	auth, err := c.sign(crowdsale.BuyTokensInstruction(programID, address, amount, ""))
	if err != nil {
		return nil, err
	}
	body := struct {
		signedBody
		Amount uint32 `json:"amount"`
	}{auth, amount}

	var out crowdsale.Purchase
	if err := c.do(ctx, http.MethodPost, "/crowdsales/"+address.String()+"/purchases", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Withdraw(ctx context.Context, programID, address solana.PublicKey) (*crowdsale.Withdrawal, error) {
	auth, err := c.sign(crowdsale.WithdrawInstruction(programID, address, ""))
	if err != nil {
		return nil, err
	}
	var out crowdsale.Withdrawal
	if err := c.do(ctx, http.MethodPost, "/crowdsales/"+address.String()+"/withdrawals", auth, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetCrowdsale(ctx context.Context, address solana.PublicKey) (*crowdsale.Crowdsale, error) {
	var out crowdsale.Crowdsale
	if err := c.do(ctx, http.MethodGet, "/crowdsales/"+address.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Airdrop asks the faucet for lamports and returns the new balance.
func (c *Client) Airdrop(ctx context.Context, to solana.PublicKey, lamports uint64) (uint64, error) {
	var out struct {
		Lamports uint64 `json:"lamports"`
	}
	body := map[string]uint64{"lamports": lamports}
	if err := c.do(ctx, http.MethodPost, "/accounts/"+to.String()+"/airdrop", body, &out); err != nil {
		return 0, err
	}
	return out.Lamports, nil
}

func (c *Client) Balance(ctx context.Context, key solana.PublicKey) (uint64, error) {
	var out struct {
		Lamports uint64 `json:"lamports"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts/"+key.String(), nil, &out); err != nil {
		return 0, err
	}
	return out.Lamports, nil
}

// CreateMint registers a mint whose authority is the client's key.
func (c *Client) CreateMint(ctx context.Context, decimals uint8) (*host.Mint, error) {
	body := struct {
		Authority string `json:"authority"`
		Decimals  uint8  `json:"decimals"`
	}{c.PublicKey().String(), decimals}

	var out host.Mint
	if err := c.do(ctx, http.MethodPost, "/mints", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MintTo(ctx context.Context, mint, owner solana.PublicKey, amount uint64) (*host.TokenAccount, error) {
	auth, err := c.sign(host.MintToInstruction(mint, owner, amount, ""))
	if err != nil {
		return nil, err
	}
	body := struct {
		signedBody
		Owner  string `json:"owner"`
		Amount uint64 `json:"amount"`
	}{auth, owner.String(), amount}

	var out host.TokenAccount
	if err := c.do(ctx, http.MethodPost, "/mints/"+mint.String()+"/mint-to", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TokenBalance(ctx context.Context, mint, owner solana.PublicKey) (uint64, error) {
	var out struct {
		Amount uint64 `json:"amount"`
	}
	if err := c.do(ctx, http.MethodGet, "/mints/"+mint.String()+"/balances/"+owner.String(), nil, &out); err != nil {
		return 0, err
	}
	return out.Amount, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	apiErr := &APIError{}
	req := c.http.R().SetContext(ctx).SetResult(result).SetError(apiErr)
	if body != nil {
		req.SetBody(body)
	}

	res, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if res.IsError() {
		apiErr.Status = res.StatusCode()
		if apiErr.Message == "" {
			apiErr.Message = apiErr.Reason
		}
		if apiErr.Message == "" {
			apiErr.Message = strconv.Quote(res.String())
		}
		return apiErr
	}
	return nil
}
