package host

import (
	"errors"
	"strings"

	"github.com/gagliardetto/solana-go"
)

var ErrInvalidSignature = errors.New("invalid signature")
var ErrDuplicateSignature = errors.New("signature already processed")
var ErrProgramMismatch = errors.New("instruction targets another program")

// Instruction is a signed request to run a program entry point.
type Instruction struct {
	Program   solana.PublicKey
	Name      string
	Args      []string
	Nonce     string
	Signer    solana.PublicKey
	Signature solana.Signature
}

// Authorization is the caller-supplied part of a signed instruction.
type Authorization struct {
	Signer    solana.PublicKey
	Signature solana.Signature
	Nonce     string
}

// Apply attaches the authorization to ix.
func (a Authorization) Apply(ix Instruction) Instruction {
	ix.Signer = a.Signer
	ix.Signature = a.Signature
	ix.Nonce = a.Nonce
	return ix
}

// Message returns the bytes covered by the signature.
func (ix Instruction) Message() []byte {
	parts := make([]string, 0, len(ix.Args)+3)
	parts = append(parts, ix.Program.String(), ix.Name)
	parts = append(parts, ix.Args...)
	parts = append(parts, ix.Nonce)
	return []byte(strings.Join(parts, ":"))
}

// Sign sets the signer to the key's public half and signs the message.
func (ix *Instruction) Sign(key solana.PrivateKey) error {
	ix.Signer = key.PublicKey()
	sig, err := key.Sign(ix.Message())
	if err != nil {
		return err
	}
	ix.Signature = sig
	return nil
}

// Verify checks the signature against the signer.
func (ix Instruction) Verify() error {
	if ix.Signer.IsZero() || ix.Signature == (solana.Signature{}) {
		return ErrInvalidSignature
	}
	if !ix.Signature.Verify(ix.Signer, ix.Message()) {
		return ErrInvalidSignature
	}
	return nil
}
