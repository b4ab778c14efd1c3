package network

func hd(private, public uint32) HDVersion {
	return HDVersion{
		Private: [4]byte{byte(private >> 24), byte(private >> 16), byte(private >> 8), byte(private)},
		Public:  [4]byte{byte(public >> 24), byte(public >> 16), byte(public >> 8), byte(public)},
	}
}

var (
	bitcoinHD = map[HDVersionKey]HDVersion{
		{Legacy, false}:     hd(0x0488ade4, 0x0488b21e), // xprv/xpub
		{Legacy, true}:      hd(0x0488ade4, 0x0488b21e),
		{P2SHSegwit, false}: hd(0x049d7878, 0x049d7cb2), // yprv/ypub
		{P2SHSegwit, true}:  hd(0x0295b005, 0x0295b43f), // Yprv/Ypub
		{Segwit, false}:     hd(0x04b2430c, 0x04b24746), // zprv/zpub
		{Segwit, true}:      hd(0x02aa7a99, 0x02aa7ed3), // Zprv/Zpub
	}
	testnetHD = map[HDVersionKey]HDVersion{
		{Legacy, false}:     hd(0x04358394, 0x043587cf), // tprv/tpub
		{Legacy, true}:      hd(0x04358394, 0x043587cf),
		{P2SHSegwit, false}: hd(0x044a4e28, 0x044a5262), // uprv/upub
		{P2SHSegwit, true}:  hd(0x024285b5, 0x024289ef), // Uprv/Upub
		{Segwit, false}:     hd(0x045f18bc, 0x045f1cf6), // vprv/vpub
		{Segwit, true}:      hd(0x02575048, 0x02575483), // Vprv/Vpub
	}
)

// Bitcoin defines the network parameters for the main Bitcoin network.
var Bitcoin = &Network{
	Name:           "bitcoin",
	Label:          "Bitcoin",
	CurrencyCode:   "BTC",
	CurrencySymbol: "₿",
	Denominator:    -8,
	PubKeyHash:     0x00,
	ScriptHash:     []byte{0x05},
	Wif:            0x80,
	Bech32:         "bc",
	HDCoinType:     0,
	HDVersions:     bitcoinHD,
	DustAmount:     1000,
	FeeDefault:     5000,
	FeeMin:         1000,
	FeeMax:         1000000,
}

// Testnet defines the network parameters for the Bitcoin test network (3).
var Testnet = &Network{
	Name:           "testnet",
	Label:          "Bitcoin Testnet",
	CurrencyCode:   "tBTC",
	CurrencySymbol: "tBTC",
	Denominator:    -8,
	PubKeyHash:     0x6f,
	ScriptHash:     []byte{0xc4},
	Wif:            0xef,
	Bech32:         "tb",
	HDCoinType:     1,
	HDVersions:     testnetHD,
	DustAmount:     1000,
	FeeDefault:     5000,
	FeeMin:         1000,
	FeeMax:         1000000,
}

// Regtest defines the network parameters for the regression test network.
var Regtest = &Network{
	Name:           "regtest",
	Label:          "Bitcoin Regtest",
	CurrencyCode:   "rBTC",
	CurrencySymbol: "rBTC",
	Denominator:    -8,
	PubKeyHash:     0x6f,
	ScriptHash:     []byte{0xc4},
	Wif:            0xef,
	Bech32:         "bcrt",
	HDCoinType:     1,
	HDVersions:     testnetHD,
	DustAmount:     1000,
	FeeDefault:     5000,
	FeeMin:         1000,
	FeeMax:         1000000,
}

// Signet defines the network parameters for the default signet.
var Signet = &Network{
	Name:           "signet",
	Label:          "Bitcoin Signet",
	CurrencyCode:   "sBTC",
	CurrencySymbol: "sBTC",
	Denominator:    -8,
	PubKeyHash:     0x6f,
	ScriptHash:     []byte{0xc4},
	Wif:            0xef,
	Bech32:         "tb",
	HDCoinType:     1,
	HDVersions:     testnetHD,
	DustAmount:     1000,
	FeeDefault:     5000,
	FeeMin:         1000,
	FeeMax:         1000000,
}

// Litecoin defines the network parameters for the main Litecoin network.
var Litecoin = &Network{
	Name:           "litecoin",
	Label:          "Litecoin",
	CurrencyCode:   "LTC",
	CurrencySymbol: "Ł",
	Denominator:    -8,
	PubKeyHash:     0x30,
	ScriptHash:     []byte{0x32, 0x05},
	Wif:            0xb0,
	Bech32:         "ltc",
	HDCoinType:     2,
	HDVersions: map[HDVersionKey]HDVersion{
		{Legacy, false}:     hd(0x019d9cfe, 0x019da462), // Ltpv/Ltub
		{Legacy, true}:      hd(0x019d9cfe, 0x019da462),
		{P2SHSegwit, false}: hd(0x01b26792, 0x01b26ef6), // Mtpv/Mtub
		{P2SHSegwit, true}:  hd(0x0295b005, 0x0295b43f),
		{Segwit, false}:     hd(0x04b2430c, 0x04b24746),
		{Segwit, true}:      hd(0x02aa7a99, 0x02aa7ed3),
	},
	DustAmount: 1000,
	FeeDefault: 10000,
	FeeMin:     1000,
	FeeMax:     2000000,
}

// LitecoinTestnet defines the network parameters for the Litecoin test network.
var LitecoinTestnet = &Network{
	Name:           "litecoin_testnet",
	Label:          "Litecoin Testnet",
	CurrencyCode:   "tLTC",
	CurrencySymbol: "tŁ",
	Denominator:    -8,
	PubKeyHash:     0x6f,
	ScriptHash:     []byte{0x3a, 0xc4},
	Wif:            0xef,
	Bech32:         "tltc",
	HDCoinType:     1,
	HDVersions: map[HDVersionKey]HDVersion{
		{Legacy, false}: hd(0x0436ef7d, 0x0436f6e1), // ttpv/ttub
		{Legacy, true}:  hd(0x0436ef7d, 0x0436f6e1),
		{Segwit, false}: hd(0x045f18bc, 0x045f1cf6),
		{Segwit, true}:  hd(0x02575048, 0x02575483),
	},
	DustAmount: 1000,
	FeeDefault: 10000,
	FeeMin:     1000,
	FeeMax:     2000000,
}

// Dogecoin defines the network parameters for the main Dogecoin network.
var Dogecoin = &Network{
	Name:           "dogecoin",
	Label:          "Dogecoin",
	CurrencyCode:   "DOGE",
	CurrencySymbol: "Ð",
	Denominator:    -8,
	PubKeyHash:     0x1e,
	ScriptHash:     []byte{0x16},
	Wif:            0x9e,
	HDCoinType:     3,
	HDVersions: map[HDVersionKey]HDVersion{
		{Legacy, false}: hd(0x02fac398, 0x02facafd), // dgpv/dgub
		{Legacy, true}:  hd(0x02fac398, 0x02facafd),
	},
	DustAmount: 1000000,
	FeeDefault: 1000000,
	FeeMin:     100000,
	FeeMax:     1000000000,
}

// DogecoinTestnet defines the network parameters for the Dogecoin test network.
var DogecoinTestnet = &Network{
	Name:           "dogecoin_testnet",
	Label:          "Dogecoin Testnet",
	CurrencyCode:   "tDOGE",
	CurrencySymbol: "tÐ",
	Denominator:    -8,
	PubKeyHash:     0x71,
	ScriptHash:     []byte{0xc4},
	Wif:            0xf1,
	HDCoinType:     1,
	HDVersions: map[HDVersionKey]HDVersion{
		{Legacy, false}: hd(0x04358394, 0x043587cf),
		{Legacy, true}:  hd(0x04358394, 0x043587cf),
	},
	DustAmount: 1000000,
	FeeDefault: 1000000,
	FeeMin:     100000,
	FeeMax:     1000000000,
}

func init() {
	register(
		Bitcoin, Testnet, Regtest, Signet,
		Litecoin, LitecoinTestnet,
		Dogecoin, DogecoinTestnet,
	)
}
