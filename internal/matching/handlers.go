package matching

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"fenrir/internal/common"
	dec "fenrir/internal/decimal"
	"fenrir/internal/market"
)

// bestOpposite returns the best resting order on the side opposite to
// takerSide.
func bestOpposite(m *market.Market, takerSide common.Side) (*market.Order, bool) {
	if takerSide == common.Ask {
		return m.BestBid()
	}
	return m.BestAsk()
}

// oppositeSorted returns every resting order opposite to takerSide, in
// price-time priority order.
func oppositeSorted(m *market.Market, takerSide common.Side) []*market.Order {
	if takerSide == common.Ask {
		return m.Bids()
	}
	return m.Asks()
}

// crosses reports whether maker's resting price crosses taker's limit
// price ("walk the opposite side while best price crosses").
func crosses(taker, maker *market.Order) bool {
	if taker.Side == common.Ask {
		return maker.Price.GreaterThanOrEqual(taker.Price)
	}
	return maker.Price.LessThanOrEqual(taker.Price)
}

// runMatch walks the opposite side of m, consuming makers into taker
// until taker is filled, the book empties, a non-crossing price is
// reached (when priceBound), the next maker is an AON order, or a BID
// taker's available money no longer covers the next fill.
//
// AON makers are never consumed by the generic matching loop: the
// source's eager-match routine for AON is unspecified, so
// this engine books AON orders as maker-only liquidity that a crossing
// taker cannot reach. Since price-time priority forbids skipping past
// an earlier resting order, an AON at the front of the book simply
// halts the sweep.
func (e *Engine) runMatch(m *market.Market, taker *market.Order, priceBound bool) {
	for taker.Left.Sign() > 0 {
		maker, ok := bestOpposite(m, taker.Side)
		if !ok {
			break
		}
		if maker.Type == common.AON {
			break
		}
		if priceBound && !crosses(taker, maker) {
			break
		}
		dealAmount := minDec(taker.Left, maker.Left)
		if taker.Side == common.Bid {
			cost := dec.Rescale(dealAmount.Mul(maker.Price), int32(m.MoneyPrec))
			if e.ledger.Available(taker.UserID, m.Money).LessThan(cost) {
				break
			}
		}
		e.settleFill(m, taker, maker, dealAmount)
	}
}

// precheckFillable reports whether the opposite side of m can fully
// satisfy amount at prices crossing price, without mutating anything
//.
func precheckFillable(m *market.Market, side common.Side, price, amount dec.Dec) bool {
	remaining := amount
	for _, maker := range oppositeSorted(m, side) {
		if maker.Type == common.AON {
			break
		}
		fake := &market.Order{Side: side, Price: price}
		if !crosses(fake, maker) {
			break
		}
		remaining = remaining.Sub(minDec(remaining, maker.Left))
		if remaining.Sign() <= 0 {
			return true
		}
	}
	return remaining.Sign() <= 0
}

// freezeRemainder locks o.Left (ASK: stock; BID: money, plus optional
// taker fee headroom when the market includes fee) and records the
// locked amount on o.Freeze, for a resting order.
func (e *Engine) freezeRemainder(m *market.Market, o *market.Order) error {
	if o.Side == common.Ask {
		o.Freeze = o.Left
		return e.ledger.FreezeAmount(o.UserID, m.Stock, o.Freeze)
	}
	money := o.Left.Mul(o.Price)
	if m.IncludeFee {
		money = money.Mul(dec.One.Add(o.TakerFee))
	}
	o.Freeze = dec.Rescale(money, int32(m.MoneyPrec))
	return e.ledger.FreezeAmount(o.UserID, m.Money, o.Freeze)
}

func (e *Engine) emitPlacement(m *market.Market, o *market.Order) {
	if e.sinks == nil {
		return
	}
	snap := o.Snapshot()
	payload := fmt.Appendf(nil, `{"id":%d,"uuid":%q,"market":%q,"user":%d,"side":%q,"type":%q,"left":%q}`,
		snap.ID, snap.UUID, m.Symbol, snap.UserID, snap.Side, snap.Type, snap.Left)
	e.sinks.AppendOperlog("order_put", payload)
	e.sinks.AppendHistory("order_put", payload)
	e.sinks.PushMessage("orders."+m.Symbol, payload)
}

func newOrder(p PlaceParams, typ common.OrderType, id uint64) *market.Order {
	now := time.Now()
	return &market.Order{
		ID:         id,
		UUID:       uuid.NewString(),
		Type:       typ,
		Side:       p.Side,
		CreateTime: now,
		UpdateTime: now,
		UserID:     p.UserID,
		Market:     p.Market,
		Source:     p.Source,
		Price:      p.Price,
		Amount:     p.Amount,
		Left:       p.Amount,
		TakerFee:   p.TakerFee,
		MakerFee:   p.MakerFee,
		DealStock:  dec.Zero,
		DealMoney:  dec.Zero,
		DealFee:    dec.Zero,
	}
}

// PlaceLimit handles ORDER_PUT_LIMIT.
func (e *Engine) PlaceLimit(p PlaceParams) (common.Code, *market.Order) {
	m, ok := e.Market(p.Market)
	if !ok {
		return common.CodeInternal, nil
	}
	if code := p.validateFees(); code != common.CodeOK {
		return code, nil
	}
	if code := e.validateAmount(m, p.Amount); code != common.CodeOK {
		return code, nil
	}
	if code := e.validatePrice(m, p.Amount, p.Price); code != common.CodeOK {
		return code, nil
	}
	if code := e.validateBalance(m, p); code != common.CodeOK {
		return code, nil
	}

	o := newOrder(p, common.Limit, e.ids.Next())
	e.runMatch(m, o, true)

	if o.Left.Sign() > 0 {
		if err := e.freezeRemainder(m, o); err != nil {
			return common.CodeInsufficientBalance, nil
		}
		_ = m.Insert(o)
	}
	e.emitPlacement(m, o)
	return common.CodeOK, o
}

// PlaceAON handles ORDER_PUT_AON. the source's AON eager-
// match semantics are unspecified, so this books the order as
// maker-only liquidity without ever executing it immediately.
func (e *Engine) PlaceAON(p PlaceParams) (common.Code, *market.Order) {
	m, ok := e.Market(p.Market)
	if !ok {
		return common.CodeInternal, nil
	}
	if code := p.validateFees(); code != common.CodeOK {
		return code, nil
	}
	if code := e.validateAmount(m, p.Amount); code != common.CodeOK {
		return code, nil
	}
	if code := e.validatePrice(m, p.Amount, p.Price); code != common.CodeOK {
		return code, nil
	}
	if code := e.validateBalance(m, p); code != common.CodeOK {
		return code, nil
	}

	o := newOrder(p, common.AON, e.ids.Next())
	if err := e.freezeRemainder(m, o); err != nil {
		return common.CodeInsufficientBalance, nil
	}
	_ = m.Insert(o)
	e.emitPlacement(m, o)
	return common.CodeOK, o
}

// PlaceMarket handles ORDER_PUT_MARKET. Market orders never rest: if
// the book empties before the order is fully filled, it terminates
// partially filled.
func (e *Engine) PlaceMarket(p PlaceParams) (common.Code, *market.Order) {
	m, ok := e.Market(p.Market)
	if !ok {
		return common.CodeInternal, nil
	}
	p.Price = dec.Zero
	if code := p.validateFees(); code != common.CodeOK {
		return code, nil
	}
	if code := e.validateAmount(m, p.Amount); code != common.CodeOK {
		return code, nil
	}

	best, ok := bestOpposite(m, p.Side)
	if !ok {
		return common.CodeNoOrders, nil
	}

	if p.Side == common.Ask {
		if e.ledger.Available(p.UserID, m.Stock).LessThan(p.Amount) {
			return common.CodeInsufficientBalance, nil
		}
	} else {
		total := dec.Rescale(best.Price.Mul(p.Amount), int32(m.MoneyPrec))
		if total.LessThan(m.MinTotal) {
			return common.CodePriceOutOfRange, nil
		}
	}

	o := newOrder(p, common.Market, e.ids.Next())
	e.runMatch(m, o, false)
	e.emitPlacement(m, o)
	return common.CodeOK, o
}

// PlaceFOK handles ORDER_PUT_FOK: atomic all-or-nothing execution at
// the given limit price, or rejection without side effect.
func (e *Engine) PlaceFOK(p PlaceParams) (common.Code, *market.Order) {
	m, ok := e.Market(p.Market)
	if !ok {
		return common.CodeInternal, nil
	}
	if code := p.validateFees(); code != common.CodeOK {
		return code, nil
	}
	if code := e.validateAmount(m, p.Amount); code != common.CodeOK {
		return code, nil
	}
	if code := e.validatePrice(m, p.Amount, p.Price); code != common.CodeOK {
		return code, nil
	}
	if code := e.validateBalance(m, p); code != common.CodeOK {
		return code, nil
	}
	if !precheckFillable(m, p.Side, p.Price, p.Amount) {
		return common.CodeNoOrders, nil
	}

	o := newOrder(p, common.FOK, e.ids.Next())
	e.runMatch(m, o, true)
	e.emitPlacement(m, o)
	return common.CodeOK, o
}

// Cancel handles ORDER_CANCEL: removes the order from its book and
// indexes, unfreezes its locked balance, and emits the cancellation
//.
func (e *Engine) Cancel(userID uint64, marketSymbol string, orderID uint64) (common.Code, *market.Order) {
	m, ok := e.Market(marketSymbol)
	if !ok {
		return common.CodeInternal, nil
	}
	o, ok := m.GetByID(orderID)
	if !ok {
		return common.CodeNotFound, nil
	}
	if o.UserID != userID {
		return common.CodeUserMismatch, nil
	}
	if err := m.Remove(o); err != nil {
		return common.CodeInternal, nil
	}

	unfreezeAsset := m.Stock
	if o.Side == common.Bid {
		unfreezeAsset = m.Money
	}
	_ = e.ledger.UnfreezeAmount(o.UserID, unfreezeAsset, o.Freeze)

	if e.sinks != nil {
		payload := fmt.Appendf(nil, `{"id":%d,"market":%q,"user":%d}`, o.ID, m.Symbol, o.UserID)
		e.sinks.AppendHistory("order_cancel", payload)
		e.sinks.AppendOperlog("order_cancel", payload)
		e.sinks.PushMessage("orders."+m.Symbol, payload)
	}
	return common.CodeOK, o
}
