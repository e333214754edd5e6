package crowdsale

import (
	"strconv"

	"github.com/gagliardetto/solana-go"

	"api_crowdsale/internal/host"
)

// AuthoritySeed is the second seed of the PDA that owns the treasury token account.
const AuthoritySeed = "authority"

// Addresses are the program-derived accounts of one crowdsale.
type Addresses struct {
	Crowdsale solana.PublicKey
	Authority solana.PublicKey
}

// DeriveAddresses computes the crowdsale PDA (seeds [id]) and its
// authority PDA (seeds [id, "authority"]).
func DeriveAddresses(programID, id solana.PublicKey) (Addresses, error) {
	sale, _, err := solana.FindProgramAddress(crowdsaleSeeds(id), programID)
	if err != nil {
		return Addresses{}, err
	}
	authority, _, err := solana.FindProgramAddress(authoritySeeds(id), programID)
	if err != nil {
		return Addresses{}, err
	}
	return Addresses{Crowdsale: sale, Authority: authority}, nil
}

func crowdsaleSeeds(id solana.PublicKey) [][]byte {
	return [][]byte{id.Bytes()}
}

func authoritySeeds(id solana.PublicKey) [][]byte {
	return [][]byte{id.Bytes(), []byte(AuthoritySeed)}
}

func InitializeInstruction(programID, id, mint solana.PublicKey, cost uint32, nonce string) host.Instruction {
	return host.Instruction{
		Program: programID,
		Name:    "initialize",
		Args:    []string{id.String(), mint.String(), strconv.FormatUint(uint64(cost), 10)},
		Nonce:   nonce,
	}
}

func BuyTokensInstruction(programID, crowdsale solana.PublicKey, amount uint32, nonce string) host.Instruction {
	return host.Instruction{
		Program: programID,
		Name:    "buy_tokens",
		Args:    []string{crowdsale.String(), strconv.FormatUint(uint64(amount), 10)},
		Nonce:   nonce,
	}
}

func WithdrawInstruction(programID, crowdsale solana.PublicKey, nonce string) host.Instruction {
	return host.Instruction{
		Program: programID,
		Name:    "withdraw",
		Args:    []string{crowdsale.String()},
		Nonce:   nonce,
	}
}
