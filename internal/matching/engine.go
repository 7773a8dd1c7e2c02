// Package matching is the order-placement and matching core: four
// order-type handlers that consume the opposite side of a book, update
// balances, emit fills, and persist order residues.
package matching

import (
	"fmt"
	"time"

	"fenrir/internal/asset"
	"fenrir/internal/common"
	dec "fenrir/internal/decimal"
	"fenrir/internal/ledger"
	"fenrir/internal/market"
	"fenrir/internal/sinks"
)

// PriceLimits configures how far a LIMIT/AON/FOK price may stray from
// the market's last trade price and closing price.
// A zero fraction disables that particular check.
type PriceLimits struct {
	LastPriceFraction    dec.Dec
	ClosingPriceFraction dec.Dec
}

// Engine owns every market, the asset registry, and the balance ledger.
// It is single-threaded cooperative: all its methods are
// meant to be called from one owning goroutine.
type Engine struct {
	assets  *asset.Registry
	ledger  *ledger.Ledger
	sinks   sinks.Sinks
	limits  PriceLimits
	ids     market.IDAllocator
	markets map[string]*market.Market
}

// New constructs a matching engine over the given asset registry,
// ledger, and sink set.
func New(assets *asset.Registry, led *ledger.Ledger, s sinks.Sinks, limits PriceLimits) *Engine {
	return &Engine{
		assets:  assets,
		ledger:  led,
		sinks:   s,
		limits:  limits,
		markets: make(map[string]*market.Market),
	}
}

// RegisterMarket creates a new market. Both legs must already be
// registered assets.
func (e *Engine) RegisterMarket(symbol, name, stock, money string, minAmount, minTotal, initPrice dec.Dec, includeFee bool, delistingTS uint32) error {
	if !e.assets.Exist(stock) {
		return fmt.Errorf("matching: unknown stock asset %s", stock)
	}
	if !e.assets.Exist(money) {
		return fmt.Errorf("matching: unknown money asset %s", money)
	}
	if _, exists := e.markets[symbol]; exists {
		return fmt.Errorf("matching: market %s already registered", symbol)
	}
	stockPrec, _ := e.assets.Prec(stock)
	moneyPrec, _ := e.assets.Prec(money)
	// Fees are charged in whichever asset a side receives, so they are
	// rounded to the finer of the two legs' precisions.
	feePrec := moneyPrec
	if stockPrec > feePrec {
		feePrec = stockPrec
	}
	e.markets[symbol] = market.New(symbol, name, stock, money, stockPrec, moneyPrec, feePrec, minAmount, minTotal, initPrice, includeFee, delistingTS)
	return nil
}

// Market looks up a registered market by symbol.
func (e *Engine) Market(symbol string) (*market.Market, bool) {
	m, ok := e.markets[symbol]
	return m, ok
}

// Markets returns every registered market, keyed by symbol.
func (e *Engine) Markets() map[string]*market.Market { return e.markets }

// checkPriceLimit implements check_price_limit: true when
// ref is zero (unset), or p is within frac of ref.
func checkPriceLimit(ref, p, frac dec.Dec) bool {
	if ref.IsZero() || frac.IsZero() {
		return true
	}
	diff := p.Sub(ref).Abs()
	return diff.Div(ref).LessThanOrEqual(frac)
}

func minDec(a, b dec.Dec) dec.Dec {
	if a.LessThan(b) {
		return a
	}
	return b
}

// PlaceParams is the common input to every placement handler.
type PlaceParams struct {
	UserID   uint64
	Market   string
	Side     common.Side
	Amount   dec.Dec
	Price    dec.Dec // ignored for MARKET
	TakerFee dec.Dec
	MakerFee dec.Dec
	Source   string
}

func (p PlaceParams) validateFees() common.Code {
	if p.TakerFee.Sign() < 0 || p.TakerFee.GreaterThanOrEqual(dec.One) {
		return common.CodeInsufficientFee
	}
	if p.MakerFee.Sign() < 0 || p.MakerFee.GreaterThanOrEqual(dec.One) {
		return common.CodeInsufficientFee
	}
	return common.CodeOK
}

// validateAmount rejects an amount below the market minimum or not a
// multiple of the stock asset's tick size.
func (e *Engine) validateAmount(m *market.Market, amount dec.Dec) common.Code {
	if amount.LessThan(m.MinAmount) {
		return common.CodeInvalidAmount
	}
	tick, _ := e.assets.TickSize(m.Stock)
	if !dec.DivisibleBy(amount, tick) {
		return common.CodeInvalidAmount
	}
	return common.CodeOK
}

// validatePrice rejects a price not a multiple of tick size, a total
// below the market minimum, or one straying past the configured
// reference-price limits, for LIMIT/AON/FOK orders.
func (e *Engine) validatePrice(m *market.Market, amount, price dec.Dec) common.Code {
	tick, _ := e.assets.TickSize(m.Money)
	if !dec.DivisibleBy(price, tick) {
		return common.CodeInvalidPrice
	}
	total := dec.Rescale(price.Mul(amount), int32(m.MoneyPrec))
	if total.LessThan(m.MinTotal) {
		return common.CodePriceOutOfRange
	}
	if !checkPriceLimit(m.LastPrice, price, e.limits.LastPriceFraction) {
		return common.CodePriceOutOfRange
	}
	if !checkPriceLimit(m.ClosingPrice, price, e.limits.ClosingPriceFraction) {
		return common.CodePriceOutOfRange
	}
	return common.CodeOK
}

// validateBalance checks sufficient available balance to rest a
// LIMIT/AON/FOK order (price already set by the caller).
func (e *Engine) validateBalance(m *market.Market, p PlaceParams) common.Code {
	if p.Side == common.Ask {
		if e.ledger.Available(p.UserID, m.Stock).LessThan(p.Amount) {
			return common.CodeInsufficientBalance
		}
		return common.CodeOK
	}
	need := p.Amount.Mul(p.Price)
	if m.IncludeFee {
		needWithFee := need.Mul(dec.One.Add(p.TakerFee))
		if e.ledger.Available(p.UserID, m.Money).LessThan(needWithFee) {
			return common.CodeInsufficientFee
		}
		return common.CodeOK
	}
	if e.ledger.Available(p.UserID, m.Money).LessThan(need) {
		return common.CodeInsufficientBalance
	}
	return common.CodeOK
}

// settleFill applies one match between taker and maker: balance
// transfers, deal accounting, last-price update, and emits a trade
// history record plus a deal message.
func (e *Engine) settleFill(m *market.Market, taker, maker *market.Order, dealAmount dec.Dec) {
	dealMoney := dec.Rescale(dealAmount.Mul(maker.Price), int32(m.MoneyPrec))

	takerFee := dec.Rescale(dealMoneyOrStock(taker.Side, dealAmount, dealMoney).Mul(taker.TakerFee), int32(m.FeePrec))
	makerFee := dec.Rescale(dealMoneyOrStock(maker.Side, dealAmount, dealMoney).Mul(maker.MakerFee), int32(m.FeePrec))

	// Maker settles against its freeze; taker settles against its
	// available balance (it was never frozen — handler
	// note: freeze is only applied to a taker's unmatched remainder).
	if maker.Side == common.Ask {
		_ = e.ledger.Add(maker.UserID, ledger.Freeze, m.Stock, dealAmount.Neg())
		maker.Freeze = maker.Freeze.Sub(dealAmount)
		_ = e.ledger.Add(maker.UserID, ledger.Available, m.Money, dealMoney.Sub(makerFee))
		_ = e.ledger.Add(common.FeeCollectorUserID, ledger.Available, m.Money, makerFee)

		_ = e.ledger.Add(taker.UserID, ledger.Available, m.Money, dealMoney.Neg())
		_ = e.ledger.Add(taker.UserID, ledger.Available, m.Stock, dealAmount.Sub(takerFee))
		_ = e.ledger.Add(common.FeeCollectorUserID, ledger.Available, m.Stock, takerFee)
	} else {
		_ = e.ledger.Add(maker.UserID, ledger.Freeze, m.Money, dealMoney.Neg())
		maker.Freeze = maker.Freeze.Sub(dealMoney)
		_ = e.ledger.Add(maker.UserID, ledger.Available, m.Stock, dealAmount.Sub(makerFee))
		_ = e.ledger.Add(common.FeeCollectorUserID, ledger.Available, m.Stock, makerFee)

		_ = e.ledger.Add(taker.UserID, ledger.Available, m.Stock, dealAmount.Neg())
		_ = e.ledger.Add(taker.UserID, ledger.Available, m.Money, dealMoney.Sub(takerFee))
		_ = e.ledger.Add(common.FeeCollectorUserID, ledger.Available, m.Money, takerFee)
	}

	now := time.Now()
	taker.Left = taker.Left.Sub(dealAmount)
	maker.Left = maker.Left.Sub(dealAmount)
	taker.DealStock = taker.DealStock.Add(dealAmount)
	taker.DealMoney = taker.DealMoney.Add(dealMoney)
	taker.DealFee = taker.DealFee.Add(takerFee)
	taker.UpdateTime = now
	maker.DealStock = maker.DealStock.Add(dealAmount)
	maker.DealMoney = maker.DealMoney.Add(dealMoney)
	maker.DealFee = maker.DealFee.Add(makerFee)
	maker.UpdateTime = now

	m.LastPrice = maker.Price

	if e.sinks != nil {
		payload := fmt.Appendf(nil, `{"market":%q,"price":%q,"amount":%q,"taker":%d,"maker":%d}`,
			m.Symbol, maker.Price.String(), dealAmount.String(), taker.UserID, maker.UserID)
		e.sinks.AppendHistory("trade", payload)
		e.sinks.PushMessage("deals."+m.Symbol, payload)
	}

	if maker.Left.IsZero() {
		_ = m.Remove(maker)
		if e.sinks != nil {
			e.sinks.AppendOperlog("order_finish", fmt.Appendf(nil, `{"id":%d}`, maker.ID))
		}
	}
}

// dealMoneyOrStock picks, for an order of the given side, the unit the
// fee should be computed on: stock if the order is a BID (it receives
// stock), money if it is an ASK (it receives money).
func dealMoneyOrStock(side common.Side, stock, money dec.Dec) dec.Dec {
	if side == common.Bid {
		return stock
	}
	return money
}
