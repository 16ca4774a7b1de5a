// Command ticketctl is the operator tool for the ticket ledger: it creates
// wallets, signs login requests and verifies a block store offline.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/iliyamo/ticket-ledger/internal/chain"
	"github.com/iliyamo/ticket-ledger/internal/model"
	"github.com/iliyamo/ticket-ledger/internal/wallet"
)

const usage = `usage: ticketctl <command> [flags]

commands:
  wallet-new     create a key file and print its address
  wallet-show    print the address and public key of a key file
  login-sign     print a signed body for POST /v1/auth/login
  verify-chain   check every block link and hash in a data directory
  to-wei         convert an ether amount to wei
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errors.New("missing command")
	}
	cmd, rest := args[0], args[1:]
	flagSet := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	flagSet.SetOutput(out)

	switch cmd {
	case "wallet-new":
		path := flagSet.StringP("out", "o", "wallet.json", "key file to write")
		if err := flagSet.Parse(rest); err != nil {
			return err
		}
		if _, err := os.Stat(*path); err == nil {
			return fmt.Errorf("%s already exists", *path)
		}
		w, err := wallet.New()
		if err != nil {
			return err
		}
		if err := w.Save(*path); err != nil {
			return err
		}
		fmt.Fprintln(out, w.Address())
		return nil

	case "wallet-show":
		path := flagSet.StringP("key", "k", "wallet.json", "key file to read")
		if err := flagSet.Parse(rest); err != nil {
			return err
		}
		w, err := wallet.Load(*path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "address:    %s\npublic_key: %s\n", w.Address(), hex.EncodeToString(w.PublicKey))
		return nil

	case "login-sign":
		path := flagSet.StringP("key", "k", "wallet.json", "key file to sign with")
		ts := flagSet.Int64("timestamp", 0, "Unix milliseconds to sign (default now)")
		if err := flagSet.Parse(rest); err != nil {
			return err
		}
		w, err := wallet.Load(*path)
		if err != nil {
			return err
		}
		if *ts == 0 {
			*ts = time.Now().UnixMilli()
		}
		return signLogin(out, w, strconv.FormatInt(*ts, 10))

	case "verify-chain":
		dir := flagSet.StringP("data-dir", "d", "", "block store directory")
		if err := flagSet.Parse(rest); err != nil {
			return err
		}
		if *dir == "" {
			return errors.New("--data-dir is required")
		}
		return verifyChain(out, *dir)

	case "to-wei":
		if err := flagSet.Parse(rest); err != nil {
			return err
		}
		if flagSet.NArg() != 1 {
			return errors.New("to-wei takes exactly one amount")
		}
		wei, err := model.WeiFromEther(flagSet.Arg(0))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, wei.String())
		return nil

	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	}
	fmt.Fprint(out, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

func signLogin(out io.Writer, w *wallet.Wallet, ts string) error {
	sig, err := w.Sign(wallet.LoginMessage(ts))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]string{
		"address":    w.Address(),
		"public_key": hex.EncodeToString(w.PublicKey),
		"signature":  hex.EncodeToString(sig),
		"timestamp":  ts,
	})
}

func verifyChain(out io.Writer, dir string) error {
	if _, err := os.Stat(dir); err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := chain.Open(dir, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	height, err := store.Verify(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "ok: %d blocks, tip %s\n", height, hex.EncodeToString(store.LastHash()))
	return nil
}
