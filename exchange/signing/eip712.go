package signing

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	extypes "github.com/perpbot/goperp/exchange/types"
)

// SignL1Action 对一个交易动作做交易所认可的签名。
//
// 动作本身不直接进 EIP712，而是先压成 connectionId，再包进一个最小的
// phantom agent 结构 {source, connectionId} 做 typed-data 签名。
// 域参数是固定的（名称/版本/链 ID/零合约地址）。
func SignL1Action(
	privateKey *ecdsa.PrivateKey,
	action interface{},
	vaultAddress string,
	nonce uint64,
	isMainnet bool,
) (extypes.Signature, error) {
	connectionID, err := ActionHash(action, vaultAddress, nonce)
	if err != nil {
		return extypes.Signature{}, err
	}

	source := SourceTestnet
	if isMainnet {
		source = SourceMainnet
	}

	domain := apitypes.TypedDataDomain{
		Name:              AgentDomainName,
		Version:           AgentVersion,
		ChainId:           math.NewHexOrDecimal256(AgentChainID),
		VerifyingContract: ZeroVerifyingContract,
	}

	typedTypes := apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"Agent": {
			{Name: "source", Type: "string"},
			{Name: "connectionId", Type: "bytes32"},
		},
	}

	message := map[string]interface{}{
		"source":       source,
		"connectionId": connectionID.Bytes(),
	}

	typedData := apitypes.TypedData{
		Types:       typedTypes,
		PrimaryType: "Agent",
		Domain:      domain,
		Message:     message,
	}

	hash, err := hashTypedData(typedData)
	if err != nil {
		return extypes.Signature{}, err
	}

	sig, err := crypto.Sign(hash.Bytes(), privateKey)
	if err != nil {
		return extypes.Signature{}, fmt.Errorf("签名失败: %w", err)
	}
	if len(sig) != 65 {
		return extypes.Signature{}, fmt.Errorf("unexpected signature length %d", len(sig))
	}

	return extypes.Signature{
		R: hexutil.Encode(sig[:32]),
		S: hexutil.Encode(sig[32:64]),
		// crypto.Sign 返回 recovery id（0/1），链上惯例是 27/28
		V: sig[64] + 27,
	}, nil
}

// hashTypedData 计算 EIP712 最终哈希：keccak256("\x19\x01" ‖ domainSeparator ‖ structHash)
func hashTypedData(typedData apitypes.TypedData) (common.Hash, error) {
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("计算域分隔符失败: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("计算消息哈希失败: %w", err)
	}

	rawData := []byte("\x19\x01")
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, typedDataHash...)
	return crypto.Keccak256Hash(rawData), nil
}

// RecoverSigner 从签名恢复出签名地址（用于自校验）。
func RecoverSigner(
	action interface{},
	vaultAddress string,
	nonce uint64,
	isMainnet bool,
	sig extypes.Signature,
) (common.Address, error) {
	connectionID, err := ActionHash(action, vaultAddress, nonce)
	if err != nil {
		return common.Address{}, err
	}

	source := SourceTestnet
	if isMainnet {
		source = SourceMainnet
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Agent": {
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name:              AgentDomainName,
			Version:           AgentVersion,
			ChainId:           math.NewHexOrDecimal256(AgentChainID),
			VerifyingContract: ZeroVerifyingContract,
		},
		Message: map[string]interface{}{
			"source":       source,
			"connectionId": connectionID.Bytes(),
		},
	}

	hash, err := hashTypedData(typedData)
	if err != nil {
		return common.Address{}, err
	}

	r, err := hexutil.Decode(sig.R)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid r: %w", err)
	}
	s, err := hexutil.Decode(sig.S)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid s: %w", err)
	}
	if sig.V < 27 {
		return common.Address{}, fmt.Errorf("invalid v: %d", sig.V)
	}
	if len(r) > 32 || len(s) > 32 {
		return common.Address{}, fmt.Errorf("r/s too long: %d/%d", len(r), len(s))
	}

	raw := make([]byte, 65)
	copy(raw[32-len(r):32], r)
	copy(raw[64-len(s):64], s)
	raw[64] = sig.V - 27

	pub, err := crypto.SigToPub(hash.Bytes(), raw)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
