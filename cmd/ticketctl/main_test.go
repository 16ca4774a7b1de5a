package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-ledger/internal/chain"
	"github.com/iliyamo/ticket-ledger/internal/model"
	"github.com/iliyamo/ticket-ledger/internal/wallet"
)

func TestWalletNewAndLoginSign(t *testing.T) {
	key := filepath.Join(t.TempDir(), "admin.json")

	var out bytes.Buffer
	require.NoError(t, run([]string{"wallet-new", "--out", key}, &out))
	addr := strings.TrimSpace(out.String())
	require.NoError(t, wallet.ValidateAddress(addr))

	assert.Error(t, run([]string{"wallet-new", "--out", key}, &out), "must not overwrite")

	out.Reset()
	require.NoError(t, run([]string{"login-sign", "-k", key, "--timestamp", "1760000000000"}, &out))
	var body map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	assert.Equal(t, addr, body["address"])
	assert.Equal(t, "1760000000000", body["timestamp"])

	pub, err := hex.DecodeString(body["public_key"])
	require.NoError(t, err)
	sig, err := hex.DecodeString(body["signature"])
	require.NoError(t, err)
	assert.NoError(t, wallet.VerifySignature(pub, wallet.LoginMessage(body["timestamp"]), sig))
}

func TestVerifyChain(t *testing.T) {
	dir := t.TempDir()
	store, err := chain.Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), model.Transaction{Seq: 1, Kind: model.TxMint, Caller: "a", Price: "1"}))
	require.NoError(t, store.Close())

	var out bytes.Buffer
	require.NoError(t, run([]string{"verify-chain", "--data-dir", dir}, &out))
	assert.Contains(t, out.String(), "ok: 1 blocks")

	assert.Error(t, run([]string{"verify-chain"}, &out))
}

func TestToWei(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"to-wei", "1.5"}, &out))
	assert.Equal(t, "1500000000000000000\n", out.String())
	assert.Error(t, run([]string{"to-wei", "-1"}, &out))
}

func TestUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run([]string{"mint"}, &out))
	assert.Error(t, run(nil, &out))
}
