package types

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// Input is a token amount the order's owner gives up on the source chain
type Input struct {
	Token  common.Address `json:"token"`
	Amount *big.Int       `json:"amount"`
}

// Output is a token amount the filler must deliver to Recipient on ChainID
type Output struct {
	Token     common.Address
	Amount    *big.Int
	Recipient common.Address
	ChainID   uint32
}

// Order is the unsigned, chain-agnostic intent
type Order struct {
	Inputs   []Input  `json:"inputs"`
	Outputs  []Output `json:"outputs"`
	Deadline uint64   `json:"deadline"`
}

// TokenPermissions grants the spender the right to move Amount of Token
type TokenPermissions struct {
	Token  common.Address
	Amount *big.Int
}

// PermitBatchTransferFrom is the Permit2 batch permit body
type PermitBatchTransferFrom struct {
	Permitted []TokenPermissions
	Nonce     *big.Int
	Deadline  *big.Int
}

// Permit2Batch is a permit together with its owner and signature
type Permit2Batch struct {
	Permit    PermitBatchTransferFrom `json:"permit"`
	Owner     common.Address          `json:"owner"`
	Signature hexutil.Bytes           `json:"signature"`
}

// SignedOrder is what gets submitted to the transaction cache
type SignedOrder struct {
	Permit  Permit2Batch
	Outputs []Output
}

// decimal carries a big integer as a JSON decimal string. Plain JSON numbers
// and 0x-prefixed strings are accepted on input.
type decimal struct{ v *big.Int }

func (d decimal) MarshalJSON() ([]byte, error) {
	if d.v == nil {
		return []byte(`"0"`), nil
	}
	return []byte(strconv.Quote(d.v.String())), nil
}

func (d *decimal) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, ok := math.ParseBig256(s)
	if !ok {
		return fmt.Errorf("invalid integer %s", string(b))
	}
	d.v = v
	return nil
}

type wireOutput struct {
	Token     common.Address `json:"token"`
	Amount    decimal        `json:"amount"`
	Recipient common.Address `json:"recipient"`
	ChainID   uint32         `json:"chainId"`
}

// MarshalJSON encodes the amount as a decimal string and chainId as a number
func (o Output) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireOutput{Token: o.Token, Amount: decimal{o.Amount}, Recipient: o.Recipient, ChainID: o.ChainID})
}

func (o *Output) UnmarshalJSON(b []byte) error {
	var w wireOutput
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*o = Output{Token: w.Token, Amount: w.Amount.v, Recipient: w.Recipient, ChainID: w.ChainID}
	return nil
}

type wirePermission struct {
	Token  common.Address `json:"token"`
	Amount decimal        `json:"amount"`
}

func (p TokenPermissions) MarshalJSON() ([]byte, error) {
	return json.Marshal(wirePermission{Token: p.Token, Amount: decimal{p.Amount}})
}

func (p *TokenPermissions) UnmarshalJSON(b []byte) error {
	var w wirePermission
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*p = TokenPermissions{Token: w.Token, Amount: w.Amount.v}
	return nil
}

type wirePermit struct {
	Permitted []TokenPermissions `json:"permitted"`
	Nonce     decimal            `json:"nonce"`
	Deadline  decimal            `json:"deadline"`
}

func (p PermitBatchTransferFrom) MarshalJSON() ([]byte, error) {
	permitted := p.Permitted
	if permitted == nil {
		permitted = []TokenPermissions{}
	}
	return json.Marshal(wirePermit{Permitted: permitted, Nonce: decimal{p.Nonce}, Deadline: decimal{p.Deadline}})
}

func (p *PermitBatchTransferFrom) UnmarshalJSON(b []byte) error {
	var w wirePermit
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*p = PermitBatchTransferFrom{Permitted: w.Permitted, Nonce: w.Nonce.v, Deadline: w.Deadline.v}
	return nil
}

type wireSignedOrder struct {
	Permit    PermitBatchTransferFrom `json:"permit"`
	Owner     common.Address          `json:"owner"`
	Signature hexutil.Bytes           `json:"signature"`
	Outputs   []Output                `json:"outputs"`
}

// MarshalJSON produces the transaction cache wire format, with owner and
// signature lifted next to the permit body.
func (s SignedOrder) MarshalJSON() ([]byte, error) {
	outputs := s.Outputs
	if outputs == nil {
		outputs = []Output{}
	}
	return json.Marshal(wireSignedOrder{
		Permit:    s.Permit.Permit,
		Owner:     s.Permit.Owner,
		Signature: s.Permit.Signature,
		Outputs:   outputs,
	})
}

// UnmarshalJSON accepts both the flat wire format and the nested
// {permit:{permit,owner,signature},outputs} form.
func (s *SignedOrder) UnmarshalJSON(b []byte) error {
	var raw struct {
		Permit    json.RawMessage `json:"permit"`
		Owner     *common.Address `json:"owner"`
		Signature hexutil.Bytes   `json:"signature"`
		Outputs   []Output        `json:"outputs"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw.Permit) == 0 {
		return errors.New("signed order: missing permit")
	}

	var batch Permit2Batch
	if raw.Owner != nil {
		if err := json.Unmarshal(raw.Permit, &batch.Permit); err != nil {
			return fmt.Errorf("signed order permit: %w", err)
		}
		batch.Owner = *raw.Owner
		batch.Signature = raw.Signature
	} else if err := json.Unmarshal(raw.Permit, &batch); err != nil {
		return fmt.Errorf("signed order permit: %w", err)
	}

	s.Permit = batch
	s.Outputs = raw.Outputs
	return nil
}

// EncodeOutputs returns the canonical byte encoding of outputs: token (20),
// amount (32, big-endian), recipient (20), chainId (4, big-endian).
func EncodeOutputs(outputs []Output) []byte {
	buf := make([]byte, 0, len(outputs)*76)
	for _, o := range outputs {
		buf = append(buf, o.Token.Bytes()...)
		amount := o.Amount
		if amount == nil {
			amount = new(big.Int)
		}
		buf = append(buf, math.U256Bytes(new(big.Int).Set(amount))...)
		buf = append(buf, o.Recipient.Bytes()...)
		buf = binary.BigEndian.AppendUint32(buf, o.ChainID)
	}
	return buf
}

// ID derives the order identifier from its signature and outputs
func (s *SignedOrder) ID() string {
	data := append([]byte{}, s.Permit.Signature...)
	data = append(data, EncodeOutputs(s.Outputs)...)
	return crypto.Keccak256Hash(data).Hex()
}

// Deadline returns the permit deadline as unix seconds
func (s *SignedOrder) Deadline() uint64 {
	if s.Permit.Permit.Deadline == nil || !s.Permit.Permit.Deadline.IsUint64() {
		return 0
	}
	return s.Permit.Permit.Deadline.Uint64()
}
