package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the subset of the JSON-RPC client the wallet uses
type Backend interface {
	ethereum.ContractCaller
	ethereum.TransactionReader
	ethereum.TransactionSender
	ethereum.GasPricer
	ethereum.GasEstimator
	ethereum.LogFilterer
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Dialer opens a backend for an RPC endpoint
type Dialer func(ctx context.Context, rpcURL string) (Backend, error)

// DialRPC is the default Dialer backed by ethclient
func DialRPC(ctx context.Context, rpcURL string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	return client, nil
}

// Wallet is a private-key account that is "connected" to one chain at a
// time, and can read any configured chain.
type Wallet struct {
	mu       sync.Mutex
	rpcURLs  map[uint64]string
	backends map[uint64]Backend
	dial     Dialer
	active   uint64
	key      *ecdsa.PrivateKey
	address  common.Address
	gasLimit uint64
	logger   *slog.Logger
}

// NewWallet creates a wallet connected to the initial chain. key may be nil
// for a read-only wallet.
func NewWallet(rpcURLs map[uint64]string, initial uint64, key *ecdsa.PrivateKey, dial Dialer, logger *slog.Logger) (*Wallet, error) {
	if _, ok := rpcURLs[initial]; !ok {
		return nil, fmt.Errorf("RPC URL not configured for chain %d", initial)
	}
	if dial == nil {
		dial = DialRPC
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Wallet{
		rpcURLs:  rpcURLs,
		backends: make(map[uint64]Backend),
		dial:     dial,
		active:   initial,
		key:      key,
		logger:   logger.With("component", "wallet"),
	}
	if key != nil {
		w.address = crypto.PubkeyToAddress(key.PublicKey)
	}
	return w, nil
}

// SetGasLimit pins the gas limit instead of estimating it
func (w *Wallet) SetGasLimit(limit uint64) {
	w.gasLimit = limit
}

// Address returns the account address
func (w *Wallet) Address() common.Address {
	return w.address
}

// ChainID returns the chain the wallet is currently connected to
func (w *Wallet) ChainID() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// SwitchChain connects the wallet to chainID
func (w *Wallet) SwitchChain(ctx context.Context, chainID uint64) error {
	if _, err := w.Reader(ctx, chainID); err != nil {
		return err
	}
	w.mu.Lock()
	prev := w.active
	w.active = chainID
	w.mu.Unlock()
	if prev != chainID {
		w.logger.Info("switched chain", "from", prev, "to", chainID)
	}
	return nil
}

// Reader returns a backend for any configured chain, dialing it on first use
func (w *Wallet) Reader(ctx context.Context, chainID uint64) (Backend, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if b, ok := w.backends[chainID]; ok {
		return b, nil
	}
	url, ok := w.rpcURLs[chainID]
	if !ok || url == "" {
		return nil, fmt.Errorf("RPC URL not configured for chain %d", chainID)
	}
	b, err := w.dial(ctx, url)
	if err != nil {
		return nil, err
	}
	w.backends[chainID] = b
	return b, nil
}

func (w *Wallet) current(ctx context.Context) (Backend, uint64, error) {
	chainID := w.ChainID()
	b, err := w.Reader(ctx, chainID)
	return b, chainID, err
}

// CallContract executes a read-only call on the active chain
func (w *Wallet) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b, _, err := w.current(ctx)
	if err != nil {
		return nil, err
	}
	return b.CallContract(ctx, msg, blockNumber)
}

// BalanceAt returns the native balance on the active chain
func (w *Wallet) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	b, _, err := w.current(ctx)
	if err != nil {
		return nil, err
	}
	return b.BalanceAt(ctx, account, blockNumber)
}

// TransactionReceipt fetches a receipt on the active chain
func (w *Wallet) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	b, _, err := w.current(ctx)
	if err != nil {
		return nil, err
	}
	return b.TransactionReceipt(ctx, hash)
}

// Transact signs and sends a call to `to` on the active chain
func (w *Wallet) Transact(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	if w.key == nil {
		return common.Hash{}, fmt.Errorf("wallet is read-only")
	}
	b, chainID, err := w.current(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := b.PendingNonceAt(ctx, w.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := b.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit := w.gasLimit
	if gasLimit == 0 {
		gasLimit = 100000
		estimated, err := b.EstimateGas(ctx, ethereum.CallMsg{From: w.address, To: &to, Data: data, Value: value})
		if err == nil {
			gasLimit = estimated * 120 / 100 // Add 20% buffer
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(new(big.Int).SetUint64(chainID)), w.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := b.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	w.logger.Info("transaction sent", "chain_id", chainID, "to", to.Hex(), "tx", signedTx.Hash().Hex())
	return signedTx.Hash(), nil
}

// TxSummary is what the CLI reports about a sent transaction
type TxSummary struct {
	Hash      common.Hash
	ChainID   uint64
	Pending   bool
	GasLimit  uint64
	Block     uint64
	GasUsed   uint64
	Succeeded bool
}

// Summarize looks hash up on chainID. A pending transaction has no block,
// gas used or outcome yet.
func (w *Wallet) Summarize(ctx context.Context, chainID uint64, hash common.Hash) (TxSummary, error) {
	b, err := w.Reader(ctx, chainID)
	if err != nil {
		return TxSummary{}, err
	}
	tx, pending, err := b.TransactionByHash(ctx, hash)
	if err != nil {
		return TxSummary{}, fmt.Errorf("failed to get transaction %s: %w", hash.Hex(), err)
	}

	summary := TxSummary{Hash: hash, ChainID: chainID, Pending: pending, GasLimit: tx.Gas()}
	if pending {
		return summary, nil
	}
	receipt, err := b.TransactionReceipt(ctx, hash)
	if err != nil {
		return TxSummary{}, fmt.Errorf("failed to get receipt for %s: %w", hash.Hex(), err)
	}
	summary.Block = receipt.BlockNumber.Uint64()
	summary.GasUsed = receipt.GasUsed
	summary.Succeeded = receipt.Status == types.ReceiptStatusSuccessful
	return summary, nil
}

// Close closes every dialed connection
func (w *Wallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, b := range w.backends {
		if c, ok := b.(interface{ Close() }); ok {
			c.Close()
		}
		delete(w.backends, id)
	}
}
