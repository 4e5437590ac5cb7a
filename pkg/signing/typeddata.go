package signing

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"signet-swap/pkg/tokens"
	"signet-swap/pkg/types"
)

const (
	domainName  = "Permit2"
	primaryType = "PermitBatchWitnessTransferFrom"
)

var permitTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	primaryType: {
		{Name: "permitted", Type: "TokenPermissions[]"},
		{Name: "spender", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
		{Name: "outputs", Type: "Output[]"},
	},
	"TokenPermissions": {
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint256"},
	},
	"Output": {
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "recipient", Type: "address"},
		{Name: "chainId", Type: "uint32"},
	},
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// PermitTypedData builds the Permit2 batch-witness payload for a permit and
// its outputs. The domain carries no version field.
func PermitTypedData(permit types.PermitBatchTransferFrom, outputs []types.Output, spender common.Address, chainID uint64) apitypes.TypedData {
	permitted := make([]interface{}, 0, len(permit.Permitted))
	for _, p := range permit.Permitted {
		permitted = append(permitted, map[string]interface{}{
			"token":  p.Token.Hex(),
			"amount": bigString(p.Amount),
		})
	}

	outs := make([]interface{}, 0, len(outputs))
	for _, o := range outputs {
		outs = append(outs, map[string]interface{}{
			"token":     o.Token.Hex(),
			"amount":    bigString(o.Amount),
			"recipient": o.Recipient.Hex(),
			"chainId":   fmt.Sprintf("%d", o.ChainID),
		})
	}

	return apitypes.TypedData{
		Types:       permitTypes,
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domainName,
			ChainId:           math.NewHexOrDecimal256(int64(chainID)),
			VerifyingContract: tokens.Permit2Address.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"permitted": permitted,
			"spender":   spender.Hex(),
			"nonce":     bigString(permit.Nonce),
			"deadline":  bigString(permit.Deadline),
			"outputs":   outs,
		},
	}
}

// Digest returns keccak256(0x19 0x01 || domainSeparator || hashStruct(message))
func Digest(data apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := data.HashStruct("EIP712Domain", data.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash EIP712 domain: %w", err)
	}
	messageHash, err := data.HashStruct(data.PrimaryType, data.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash EIP712 message: %w", err)
	}

	prefixed := []byte{0x19, 0x01}
	prefixed = append(prefixed, domainSeparator...)
	prefixed = append(prefixed, messageHash...)
	return crypto.Keccak256(prefixed), nil
}

// RecoverSigner returns the address that produced sig over data
func RecoverSigner(data apitypes.TypedData, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	digest, err := Digest(data)
	if err != nil {
		return common.Address{}, err
	}

	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// RecoverOwner re-derives the digest of a signed order and returns its signer
func RecoverOwner(order *types.SignedOrder, chainID uint64, spender common.Address) (common.Address, error) {
	data := PermitTypedData(order.Permit.Permit, order.Outputs, spender, chainID)
	return RecoverSigner(data, order.Permit.Signature)
}

// Verify checks that the order's signature was produced by its owner
func Verify(order *types.SignedOrder, chainID uint64, spender common.Address) error {
	recovered, err := RecoverOwner(order, chainID, spender)
	if err != nil {
		return err
	}
	if recovered != order.Permit.Owner {
		return fmt.Errorf("signature recovers to %s, owner is %s", recovered.Hex(), order.Permit.Owner.Hex())
	}
	return nil
}
