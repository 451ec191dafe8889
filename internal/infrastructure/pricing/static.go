package pricing

// CoinPrice 单个币种的报价
type CoinPrice struct {
	Name      string  `json:"name"`
	Price     int64   `json:"price"`     // 单价（单位：分）
	Variation float64 `json:"variation"` // 24h 涨跌幅（%）
}

// PriceSource 行情来源的窄接口
// 当前使用静态报价表，接入实时行情时只需替换实现
type PriceSource interface {
	Get(symbol string) (CoinPrice, bool)
	All() map[string]CoinPrice
}

type staticSource struct {
	prices map[string]CoinPrice
}

// NewStaticSource 静态报价表
func NewStaticSource() PriceSource {
	return &staticSource{
		prices: map[string]CoinPrice{
			"BTC":   {Name: "Bitcoin", Price: 61379377, Variation: 0.94},
			"ETH":   {Name: "Ethereum", Price: 2350724, Variation: -0.69},
			"BNB":   {Name: "BNB", Price: 234015, Variation: 1.25},
			"SOL":   {Name: "Solana", Price: 134034, Variation: -0.04},
			"ADA":   {Name: "Cardano", Price: 345, Variation: 2.15},
			"DOT":   {Name: "Polkadot", Price: 18092, Variation: 1.02},
			"XRP":   {Name: "XRP", Price: 284, Variation: 0.75},
			"DOGE":  {Name: "Dogecoin", Price: 85, Variation: 3.45},
			"AVAX":  {Name: "Avalanche", Price: 45678, Variation: -0.92},
			"LINK":  {Name: "Chainlink", Price: 8934, Variation: 1.56},
			"MATIC": {Name: "Polygon", Price: 567, Variation: 2.34},
			"LTC":   {Name: "Litecoin", Price: 72289, Variation: 0.21},
			"UNI":   {Name: "Uniswap", Price: 4523, Variation: -1.23},
			"XLM":   {Name: "Stellar", Price: 56, Variation: 0.89},
			"ATOM":  {Name: "Cosmos", Price: 12345, Variation: 1.78},
		},
	}
}

func (s *staticSource) Get(symbol string) (CoinPrice, bool) {
	price, ok := s.prices[symbol]
	return price, ok
}

func (s *staticSource) All() map[string]CoinPrice {
	return s.prices
}
