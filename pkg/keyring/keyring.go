package keyring

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"

	"github.com/perpbot/goperp/pkg/secretstore"
)

// DefaultDerivationPath 默认 BIP-44 以太坊派生路径
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

// Signer 签名账户：私钥 + 对应地址（统一小写渲染）。
type Signer struct {
	PrivateKey *ecdsa.PrivateKey
	Address    string
}

// FromHex 从十六进制私钥创建签名账户
func FromHex(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("private key is required")
	}
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return newSigner(pk), nil
}

// FromMnemonic 从助记词按派生路径导出签名账户
func FromMnemonic(mnemonic, derivationPath string) (*Signer, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if mnemonic == "" {
		return nil, fmt.Errorf("mnemonic is required")
	}
	if strings.TrimSpace(derivationPath) == "" {
		derivationPath = DefaultDerivationPath
	}

	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}

	path, err := hdwallet.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, fmt.Errorf("invalid derivation path: %w", err)
	}

	acct, err := w.Derive(path, false)
	if err != nil {
		return nil, fmt.Errorf("derive failed: %w", err)
	}

	pk, err := w.PrivateKey(acct)
	if err != nil {
		return nil, fmt.Errorf("private key failed: %w", err)
	}
	return newSigner(pk), nil
}

// FromSecretStore 从加密存储加载签名账户。
// 优先使用私钥，其次助记词；两者都缺失返回错误。
func FromSecretStore(store *secretstore.Store, derivationPath string) (*Signer, error) {
	if pk, ok, err := store.GetString(secretstore.KeySignerPrivateKey); err != nil {
		return nil, err
	} else if ok && strings.TrimSpace(pk) != "" {
		return FromHex(pk)
	}

	if mn, ok, err := store.GetString(secretstore.KeySignerMnemonic); err != nil {
		return nil, err
	} else if ok && strings.TrimSpace(mn) != "" {
		return FromMnemonic(mn, derivationPath)
	}

	return nil, fmt.Errorf("secret store has neither %s nor %s",
		secretstore.KeySignerPrivateKey, secretstore.KeySignerMnemonic)
}

func newSigner(pk *ecdsa.PrivateKey) *Signer {
	addr := crypto.PubkeyToAddress(pk.PublicKey)
	return &Signer{
		PrivateKey: pk,
		// 签名和请求体里出现的地址必须是小写形式
		Address: strings.ToLower(addr.Hex()),
	}
}
