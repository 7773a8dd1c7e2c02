package dispatch

// Command codes, keyed by name command table. The
// numeric values are this host's assignment; callers address commands
// by these constants, not by the literal numbers.
const (
	BalanceQuery uint32 = 100 + iota
	BalanceUpdate
	AssetList
	AssetSummary
	AssetRegister
	OrderPutLimit
	OrderPutMarket
	OrderPutAON
	OrderPutFOK
	OrderQuery
	OrderCancel
	OrderBook
	OrderBookDepth
	OrderDetail
	MarketList
	MarketSummary
	MarketRegister
	MarketDetail
)

// mutating reports whether command must be gated on sink health before
// running (balance_update, any order_put, order_cancel).
func mutating(command uint32) bool {
	switch command {
	case BalanceUpdate, OrderPutLimit, OrderPutMarket, OrderPutAON, OrderPutFOK, OrderCancel:
		return true
	default:
		return false
	}
}
