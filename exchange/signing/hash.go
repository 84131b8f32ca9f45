package signing

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vmihailenco/msgpack/v5"
)

// ActionHash 计算动作的 connectionId：
//
//	keccak256(msgpack(action) ‖ vault(20 字节) ‖ nonce(8 字节大端))
//
// msgpack 编码保留结构体字段的声明顺序（map 不排序），这正是交易所
// 复算哈希时使用的字节流；没有 vault 时填 20 个零字节。
func ActionHash(action interface{}, vaultAddress string, nonce uint64) (common.Hash, error) {
	data, err := msgpack.Marshal(action)
	if err != nil {
		return common.Hash{}, fmt.Errorf("marshal action: %w", err)
	}

	vault := make([]byte, common.AddressLength)
	if strings.TrimSpace(vaultAddress) != "" {
		if !common.IsHexAddress(vaultAddress) {
			return common.Hash{}, fmt.Errorf("invalid vault address %q", vaultAddress)
		}
		copy(vault, common.HexToAddress(strings.ToLower(vaultAddress)).Bytes())
	}
	data = append(data, vault...)

	var nb [8]byte
	binary.BigEndian.PutUint64(nb[:], nonce)
	data = append(data, nb[:]...)

	return crypto.Keccak256Hash(data), nil
}
