package types

import "encoding/json"

// EthSendBundle mirrors the eth_sendBundle payload
type EthSendBundle struct {
	Txs               []string `json:"txs"`
	RevertingTxHashes []string `json:"revertingTxHashes"`
	BlockNumber       uint64   `json:"blockNumber"`
	MinTimestamp      *uint64  `json:"minTimestamp,omitempty"`
	MaxTimestamp      *uint64  `json:"maxTimestamp,omitempty"`
	ReplacementUUID   string   `json:"replacementUuid,omitempty"`
}

// SignetEthBundle is a bundle plus the host-chain fills it depends on
type SignetEthBundle struct {
	HostFills *SignedOrder  `json:"hostFills,omitempty"`
	Bundle    EthSendBundle `json:"bundle"`
}

// CachedBundle is a bundle as listed by the transaction cache
type CachedBundle struct {
	ID     string          `json:"id"`
	Bundle SignetEthBundle `json:"bundle"`
}

// SendBundleResponse is returned when a bundle is accepted
type SendBundleResponse struct {
	ID string `json:"id"`
}

// SendTransactionResponse is returned when a raw transaction is accepted
type SendTransactionResponse struct {
	TxHash string `json:"txHash"`
}

// OrdersResponse is the GET /orders body
type OrdersResponse struct {
	Orders []SignedOrder `json:"orders"`
}

// BundlesResponse is the GET /bundles body
type BundlesResponse struct {
	Bundles []CachedBundle `json:"bundles"`
}

// TransactionsResponse is the GET /transactions body; envelopes are left raw
type TransactionsResponse struct {
	Transactions []json.RawMessage `json:"transactions"`
}
