package signing

const (
	// AgentDomainName EIP712 域名名称
	AgentDomainName = "Exchange"

	// AgentVersion EIP712 版本
	AgentVersion = "1"

	// AgentChainID 签名域固定链 ID（与交易执行链无关）
	AgentChainID = 1337

	// ZeroVerifyingContract 固定为零地址
	ZeroVerifyingContract = "0x0000000000000000000000000000000000000000"

	// SourceMainnet / SourceTestnet 网络标记，进入 phantom agent 的 source 字段
	SourceMainnet = "a"
	SourceTestnet = "b"
)
