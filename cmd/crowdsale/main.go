package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"

	"api_crowdsale/internal/client"
	"api_crowdsale/internal/config"
	"api_crowdsale/internal/crowdsale"
)

const usage = `Usage: crowdsale <command> [arguments]
Commands:
  keygen
  airdrop <lamports>
  create-mint <decimals>
  mint-to <mint> <owner> <amount>
  initialize <mint> <cost>
  buy <crowdsale> <amount>
  withdraw <crowdsale>
  show <crowdsale>`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(2)
	}
	if os.Args[1] == "keygen" {
		key, err := solana.NewRandomPrivateKey()
		if err != nil {
			fail("Error generating key:", err)
		}
		fmt.Println("CROWDSALE_PRIVATE_KEY=" + key.String())
		fmt.Println("public key:", key.PublicKey())
		return
	}

	cfg, err := config.LoadCLI()
	if err != nil {
		fail("Error loading config:", err)
	}
	c := client.New(cfg.APIURL, cfg.PrivateKey)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, c, os.Args[1], os.Args[2:]); err != nil {
		fail("Error:", err)
	}
}

func run(ctx context.Context, c *client.Client, cmd string, args []string) error {
	switch cmd {
	case "airdrop":
		if len(args) < 1 {
			return usageErr("airdrop <lamports>")
		}
		lamports, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid lamports: %w", err)
		}
		balance, err := c.Airdrop(ctx, c.PublicKey(), lamports)
		if err != nil {
			return err
		}
		fmt.Printf("Balance of %s: %d lamports\n", c.PublicKey(), balance)

	case "create-mint":
		if len(args) < 1 {
			return usageErr("create-mint <decimals>")
		}
		decimals, err := strconv.ParseUint(args[0], 10, 8)
		if err != nil {
			return fmt.Errorf("invalid decimals: %w", err)
		}
		mint, err := c.CreateMint(ctx, uint8(decimals))
		if err != nil {
			return err
		}
		return printJSON(mint)

	case "mint-to":
		if len(args) < 3 {
			return usageErr("mint-to <mint> <owner> <amount>")
		}
		mint, err := solana.PublicKeyFromBase58(args[0])
		if err != nil {
			return fmt.Errorf("invalid mint: %w", err)
		}
		owner, err := solana.PublicKeyFromBase58(args[1])
		if err != nil {
			return fmt.Errorf("invalid owner: %w", err)
		}
		amount, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid amount: %w", err)
		}
		acc, err := c.MintTo(ctx, mint, owner, amount)
		if err != nil {
			return err
		}
		return printJSON(acc)

	case "initialize":
		if len(args) < 2 {
			return usageErr("initialize <mint> <cost>")
		}
		mint, err := solana.PublicKeyFromBase58(args[0])
		if err != nil {
			return fmt.Errorf("invalid mint: %w", err)
		}
		cost, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid cost: %w", err)
		}
		programID, err := c.ProgramID(ctx)
		if err != nil {
			return err
		}
		idKey, err := solana.NewRandomPrivateKey()
		if err != nil {
			return err
		}
		addrs, err := crowdsale.DeriveAddresses(programID, idKey.PublicKey())
		if err != nil {
			return err
		}
		fmt.Println("ID:", idKey.PublicKey())
		fmt.Println("crowdsale:", addrs.Crowdsale)
		fmt.Println("crowdsale authority:", addrs.Authority)

		sale, err := c.Initialize(ctx, programID, idKey.PublicKey(), mint, uint32(cost))
		if err != nil {
			return err
		}
		fmt.Printf("Successfully initialized crowdsale at %s\n", sale.Address)
		return printJSON(sale)

	case "buy":
		if len(args) < 2 {
			return usageErr("buy <crowdsale> <amount>")
		}
		address, err := solana.PublicKeyFromBase58(args[0])
		if err != nil {
			return fmt.Errorf("invalid crowdsale: %w", err)
		}
		amount, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid amount: %w", err)
		}
		programID, err := c.ProgramID(ctx)
		if err != nil {
			return err
		}
		p, err := c.BuyTokens(ctx, programID, address, uint32(amount))
		if err != nil {
			return err
		}
		return printJSON(p)

	case "withdraw":
		if len(args) < 1 {
			return usageErr("withdraw <crowdsale>")
		}
		address, err := solana.PublicKeyFromBase58(args[0])
		if err != nil {
			return fmt.Errorf("invalid crowdsale: %w", err)
		}
		programID, err := c.ProgramID(ctx)
		if err != nil {
			return err
		}
		w, err := c.Withdraw(ctx, programID, address)
		if err != nil {
			return err
		}
		return printJSON(w)

	case "show":
		if len(args) < 1 {
			return usageErr("show <crowdsale>")
		}
		address, err := solana.PublicKeyFromBase58(args[0])
		if err != nil {
			return fmt.Errorf("invalid crowdsale: %w", err)
		}
		sale, err := c.GetCrowdsale(ctx, address)
		if err != nil {
			return err
		}
		return printJSON(sale)

	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	return nil
}

func usageErr(s string) error {
	return fmt.Errorf("usage: %s", s)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fail(msg string, err error) {
	fmt.Fprintln(os.Stderr, msg, err)
	os.Exit(1)
}
