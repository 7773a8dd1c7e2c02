// Package dispatch routes decoded protocol frames to the matching
// engine, ledger, and asset registry, and renders their results back
// into the wire reply envelope.
package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fenrir/internal/asset"
	"fenrir/internal/common"
	dec "fenrir/internal/decimal"
	"fenrir/internal/depth"
	"fenrir/internal/ledger"
	"fenrir/internal/market"
	"fenrir/internal/matching"
	"fenrir/internal/protocol"
	"fenrir/internal/sinks"
)

// Reply is the JSON envelope every command returns.
type Reply struct {
	Error  *wireError      `json:"error"`
	Result json.RawMessage `json:"result,omitempty"`
	ID     uint64          `json:"id"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Wire error codes, offset by 5000 from zero error table.
const wireOffset = 5000

const (
	wireInvalidArgument     = 1
	wireInternal            = 2
	wireServiceUnavailable  = 3
	wireInsufficientBalance = 10
	wireInvalidAmount       = 11
	wirePriceOutOfRange     = 12
	wireInsufficientFee     = 13
	wireInvalidPrice        = 14
	wireNoOrders            = 15
)

func errReply(reqID uint64, code int, msg string) []byte {
	buf, _ := json.Marshal(Reply{ID: reqID, Error: &wireError{Code: wireOffset + code, Message: msg}})
	return buf
}

func okReply(reqID uint64, result any) []byte {
	raw, err := json.Marshal(result)
	if err != nil {
		return errReply(reqID, wireInternal, "marshal result")
	}
	buf, _ := json.Marshal(Reply{ID: reqID, Result: raw})
	return buf
}

// codeToWire maps a business-rule common.Code to its wire error code
// and message.
func codeToWire(code common.Code) (int, string) {
	switch code {
	case common.CodeInsufficientBalance:
		return wireInsufficientBalance, "insufficient balance"
	case common.CodeNotFound:
		return wireInsufficientBalance, "order not found"
	case common.CodeRepeatUpdate:
		return wireInsufficientBalance, "repeat update"
	case common.CodeInvalidAmount:
		return wireInvalidAmount, "invalid amount"
	case common.CodeUserMismatch:
		return wireInvalidAmount, "user mismatch"
	case common.CodeBalanceNotEnough:
		return wireInvalidAmount, "balance not enough"
	case common.CodePriceOutOfRange:
		return wirePriceOutOfRange, "price out of range"
	case common.CodeInsufficientFee:
		return wireInsufficientFee, "insufficient trading fee"
	case common.CodeInvalidPrice:
		return wireInvalidPrice, "invalid price"
	case common.CodeNoOrders:
		return wireNoOrders, "no orders found"
	default:
		return wireInternal, "internal error"
	}
}

// Dispatcher owns every collaborator a command handler needs. One
// Dispatcher is shared by every connection; like the engine it wraps,
// it is meant to be driven from a single owning goroutine.
type Dispatcher struct {
	Assets *asset.Registry
	Ledger *ledger.Ledger
	Engine *matching.Engine
	Cache  *depth.Cache
	Sinks  sinks.Sinks

	OrderBookMaxLen int
	OrderListMaxLen int
}

// New constructs a Dispatcher. Zero maxima fall back to sane defaults.
func New(assets *asset.Registry, led *ledger.Ledger, eng *matching.Engine, cache *depth.Cache, s sinks.Sinks) *Dispatcher {
	return &Dispatcher{
		Assets:          assets,
		Ledger:          led,
		Engine:          eng,
		Cache:           cache,
		Sinks:           s,
		OrderBookMaxLen: 100,
		OrderListMaxLen: 100,
	}
}

// ErrMalformedBody is returned by Handle when body does not decode as a
// JSON array of positional arguments. This is a framing-level failure,
// not a business-rule rejection: the caller holds no reply to send back
// and should log the offending bytes and close the connection, the same
// way it handles an unexpected frame type.
var ErrMalformedBody = errors.New("dispatch: malformed request body")

// Handle decodes body as a JSON array of positional arguments, routes
// command to its handler, and returns the serialized reply. A non-nil
// error is always ErrMalformedBody; the returned []byte is nil in that
// case and the caller must not write it back as a reply.
func (d *Dispatcher) Handle(command uint32, reqID uint64, body []byte) ([]byte, error) {
	if mutating(command) && sinks.Unavailable(d.Sinks) {
		return errReply(reqID, wireServiceUnavailable, "service unavailable"), nil
	}

	var args []json.RawMessage
	if len(body) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			return nil, ErrMalformedBody
		}
	}

	result, code, err := d.route(command, body, args)
	if err != nil {
		return errReply(reqID, wireInvalidArgument, err.Error()), nil
	}
	if code != common.CodeOK {
		wireCode, msg := codeToWire(code)
		return errReply(reqID, wireCode, msg), nil
	}
	return okReply(reqID, result), nil
}

func (d *Dispatcher) route(command uint32, body []byte, args []json.RawMessage) (any, common.Code, error) {
	switch command {
	case BalanceQuery:
		return d.balanceQuery(args)
	case BalanceUpdate:
		return d.balanceUpdate(args)
	case AssetList:
		return d.assetList(args)
	case AssetSummary:
		return d.assetSummary(args)
	case AssetRegister:
		return d.assetRegister(args)
	case OrderPutLimit:
		return d.orderPutLimit(args)
	case OrderPutMarket:
		return d.orderPutMarket(args)
	case OrderPutAON:
		return d.orderPutAON(args)
	case OrderPutFOK:
		return d.orderPutFOK(args)
	case OrderQuery:
		return d.orderQuery(args)
	case OrderCancel:
		return d.orderCancel(args)
	case OrderBook:
		return d.orderBook(args)
	case OrderBookDepth:
		return d.orderBookDepth(command, body, args)
	case OrderDetail:
		return d.orderDetail(args)
	case MarketList:
		return d.marketList(args)
	case MarketSummary:
		return d.marketSummary(args)
	case MarketRegister:
		return d.marketRegister(args)
	case MarketDetail:
		return d.marketDetail(args)
	default:
		return nil, common.CodeOK, fmt.Errorf("unknown command %d", command)
	}
}

// --- balance ---

// balanceQuery handles BALANCE_QUERY: [user_id, asset?...]. With no
// asset arguments it reports every registered asset's balance for the
// user (dual-form query).
func (d *Dispatcher) balanceQuery(args []json.RawMessage) (any, common.Code, error) {
	user, err := argUint64(args, 0)
	if err != nil {
		return nil, common.CodeOK, err
	}
	symbols, err := restStrings(args, 1)
	if err != nil {
		return nil, common.CodeOK, err
	}
	if len(symbols) == 0 {
		symbols = d.Assets.Symbols()
	}

	out := make(map[string]map[string]string, len(symbols))
	for _, sym := range symbols {
		if !d.Assets.Exist(sym) {
			continue
		}
		out[sym] = map[string]string{
			"available": d.Ledger.Get(user, ledger.Available, sym).String(),
			"freeze":    d.Ledger.Get(user, ledger.Freeze, sym).String(),
		}
	}
	return out, common.CodeOK, nil
}

// balanceUpdate handles BALANCE_UPDATE:
// [user_id, asset, business, business_id, change, detail?].
func (d *Dispatcher) balanceUpdate(args []json.RawMessage) (any, common.Code, error) {
	user, err := argUint64(args, 0)
	if err != nil {
		return nil, common.CodeOK, err
	}
	symbol, err := argString(args, 1)
	if err != nil {
		return nil, common.CodeOK, err
	}
	if !d.Assets.Exist(symbol) {
		return nil, common.CodeOK, fmt.Errorf("unknown asset %q", symbol)
	}
	business, err := argString(args, 2)
	if err != nil {
		return nil, common.CodeOK, err
	}
	businessID, err := argUint64(args, 3)
	if err != nil {
		return nil, common.CodeOK, err
	}
	change, err := argDec(args, 4)
	if err != nil {
		return nil, common.CodeOK, err
	}
	detail := argRaw(args, 5)

	prec, _ := d.Assets.Prec(symbol)
	change = dec.Rescale(change, int32(prec))

	res := d.Ledger.Update(d.Sinks, true, user, symbol, business, businessID, change, detail)
	switch res.Code {
	case ledger.UpdateRepeat:
		return nil, common.CodeRepeatUpdate, nil
	case ledger.UpdateInsufficient:
		return nil, common.CodeBalanceNotEnough, nil
	}
	return map[string]string{"status": "success", "balance": res.Balance.String()}, common.CodeOK, nil
}

// --- asset ---

func (d *Dispatcher) assetList(args []json.RawMessage) (any, common.Code, error) {
	list := d.Assets.List()
	out := make([]map[string]any, 0, len(list))
	for _, a := range list {
		out = append(out, map[string]any{
			"symbol":    a.Symbol,
			"name":      a.Name,
			"prec_save": a.PrecSave,
			"prec_show": a.PrecShow,
			"tick_size": a.Tick.String(),
		})
	}
	return out, common.CodeOK, nil
}

func (d *Dispatcher) assetSummary(args []json.RawMessage) (any, common.Code, error) {
	symbols, err := restStrings(args, 0)
	if err != nil {
		return nil, common.CodeOK, err
	}
	if len(symbols) == 0 {
		symbols = d.Assets.Symbols()
	}
	out := make([]map[string]any, 0, len(symbols))
	for _, sym := range symbols {
		sum, err := d.Assets.Summarize(d.Ledger, sym)
		if err != nil {
			continue
		}
		out = append(out, map[string]any{
			"symbol":          sum.Symbol,
			"total_count":     sum.TotalCount,
			"available_count": sum.AvailableCount,
			"available":       sum.Available.String(),
			"freeze_count":    sum.FreezeCount,
			"freeze":          sum.Freeze.String(),
			"total":           sum.Total.String(),
		})
	}
	return out, common.CodeOK, nil
}

// assetRegister handles ASSET_REGISTER: [symbol, name, tick_size_str].
// The parameter row carries no separate prec_save/prec_show; this
// derives prec_save from the number of fractional digits in
// tick_size_str and lets Registry.Register default prec_show to
// prec_save.
func (d *Dispatcher) assetRegister(args []json.RawMessage) (any, common.Code, error) {
	symbol, err := argString(args, 0)
	if err != nil {
		return nil, common.CodeOK, err
	}
	name, err := argString(args, 1)
	if err != nil {
		return nil, common.CodeOK, err
	}
	tickStr, err := argString(args, 2)
	if err != nil {
		return nil, common.CodeOK, err
	}
	tick, perr := dec.Parse(tickStr)
	if perr != nil {
		return nil, common.CodeOK, perr
	}
	precSave := int(-tick.Exponent())
	if precSave < 0 {
		precSave = 0
	}
	if rerr := d.Assets.Register(symbol, name, precSave, precSave, tickStr); rerr != nil {
		return nil, common.CodeOK, rerr
	}
	return map[string]any{"status": "success", "symbol": symbol, "prec_save": precSave}, common.CodeOK, nil
}

// --- order placement ---

func decodePlaceParams(args []json.RawMessage, priced bool) (matching.PlaceParams, error) {
	var p matching.PlaceParams
	user, err := argUint64(args, 0)
	if err != nil {
		return p, err
	}
	mkt, err := argString(args, 1)
	if err != nil {
		return p, err
	}
	side, err := argSide(args, 2)
	if err != nil {
		return p, err
	}
	amount, err := argDec(args, 3)
	if err != nil {
		return p, err
	}
	idx := 4
	var price dec.Dec
	if priced {
		price, err = argDec(args, idx)
		if err != nil {
			return p, err
		}
		idx++
	}
	takerFee, err := argDec(args, idx)
	if err != nil {
		return p, err
	}
	idx++
	// Only LIMIT/AON (priced) carry a maker_fee argument: a
	// MARKET order never rests, so it never earns a maker-side fee, and
	// its param list has no maker_fee slot — the next position is
	// source, not a decimal.
	makerFee := dec.Zero
	if priced {
		makerFee, err = argDecOptional(args, idx, dec.Zero)
		if err != nil {
			return p, err
		}
		idx++
	}
	source, _ := argString(args, idx)
	if len(source) > common.SourceMaxLen {
		source = source[:common.SourceMaxLen]
	}

	p = matching.PlaceParams{
		UserID:   user,
		Market:   mkt,
		Side:     side,
		Amount:   amount,
		Price:    price,
		TakerFee: takerFee,
		MakerFee: makerFee,
		Source:   source,
	}
	return p, nil
}

func placeResult(code common.Code, o *market.Order) (any, common.Code, error) {
	if code != common.CodeOK {
		return nil, code, nil
	}
	return o.Snapshot(), common.CodeOK, nil
}

// orderPutLimit handles ORDER_PUT_LIMIT:
// [user_id, market, side, amount, price, taker_fee, maker_fee, source?].
func (d *Dispatcher) orderPutLimit(args []json.RawMessage) (any, common.Code, error) {
	p, err := decodePlaceParams(args, true)
	if err != nil {
		return nil, common.CodeOK, err
	}
	code, o := d.Engine.PlaceLimit(p)
	return placeResult(code, o)
}

// orderPutMarket handles ORDER_PUT_MARKET:
// [user_id, market, side, amount, taker_fee, source?] (no price).
func (d *Dispatcher) orderPutMarket(args []json.RawMessage) (any, common.Code, error) {
	p, err := decodePlaceParams(args, false)
	if err != nil {
		return nil, common.CodeOK, err
	}
	code, o := d.Engine.PlaceMarket(p)
	return placeResult(code, o)
}

// orderPutAON handles ORDER_PUT_AON:
// [user_id, market, side, amount, price, taker_fee, maker_fee, source?].
func (d *Dispatcher) orderPutAON(args []json.RawMessage) (any, common.Code, error) {
	p, err := decodePlaceParams(args, true)
	if err != nil {
		return nil, common.CodeOK, err
	}
	code, o := d.Engine.PlaceAON(p)
	return placeResult(code, o)
}

// orderPutFOK handles ORDER_PUT_FOK:
// [user_id, market, side, amount, price, taker_fee, source?]. The
// parameter row carries no maker_fee for FOK (a FOK order never rests,
// so it never earns the maker side of a fee); this defaults it to zero
// rather than require callers to pass an unused argument.
func (d *Dispatcher) orderPutFOK(args []json.RawMessage) (any, common.Code, error) {
	user, err := argUint64(args, 0)
	if err != nil {
		return nil, common.CodeOK, err
	}
	mkt, err := argString(args, 1)
	if err != nil {
		return nil, common.CodeOK, err
	}
	side, err := argSide(args, 2)
	if err != nil {
		return nil, common.CodeOK, err
	}
	amount, err := argDec(args, 3)
	if err != nil {
		return nil, common.CodeOK, err
	}
	price, err := argDec(args, 4)
	if err != nil {
		return nil, common.CodeOK, err
	}
	takerFee, err := argDec(args, 5)
	if err != nil {
		return nil, common.CodeOK, err
	}
	source, _ := argString(args, 6)
	if len(source) > common.SourceMaxLen {
		source = source[:common.SourceMaxLen]
	}

	p := matching.PlaceParams{
		UserID:   user,
		Market:   mkt,
		Side:     side,
		Amount:   amount,
		Price:    price,
		TakerFee: takerFee,
		MakerFee: dec.Zero,
		Source:   source,
	}
	code, o := d.Engine.PlaceFOK(p)
	return placeResult(code, o)
}

// --- order query/cancel ---

// orderQuery handles ORDER_QUERY: [user_id, market, offset?, limit?].
func (d *Dispatcher) orderQuery(args []json.RawMessage) (any, common.Code, error) {
	user, err := argUint64(args, 0)
	if err != nil {
		return nil, common.CodeOK, err
	}
	symbol, err := argString(args, 1)
	if err != nil {
		return nil, common.CodeOK, err
	}
	offset, _ := argInt(args, 2)
	limit, lerr := argInt(args, 3)
	if lerr != nil || limit <= 0 {
		limit = d.OrderListMaxLen
	}
	if limit > d.OrderListMaxLen {
		limit = d.OrderListMaxLen
	}

	m, ok := d.Engine.Market(symbol)
	if !ok {
		return nil, common.CodeOK, fmt.Errorf("unknown market %q", symbol)
	}
	orders, total := m.ListByUser(user, offset, limit)
	snaps := make([]market.Snapshot, 0, len(orders))
	for _, o := range orders {
		snaps = append(snaps, o.Snapshot())
	}
	return map[string]any{"total": total, "orders": snaps}, common.CodeOK, nil
}

// orderCancel handles ORDER_CANCEL: [user_id, market, order_id].
func (d *Dispatcher) orderCancel(args []json.RawMessage) (any, common.Code, error) {
	user, err := argUint64(args, 0)
	if err != nil {
		return nil, common.CodeOK, err
	}
	symbol, err := argString(args, 1)
	if err != nil {
		return nil, common.CodeOK, err
	}
	orderID, err := argUint64(args, 2)
	if err != nil {
		return nil, common.CodeOK, err
	}
	code, o := d.Engine.Cancel(user, symbol, orderID)
	return placeResult(code, o)
}

// orderDetail handles ORDER_DETAIL: [market, order_id].
func (d *Dispatcher) orderDetail(args []json.RawMessage) (any, common.Code, error) {
	symbol, err := argString(args, 0)
	if err != nil {
		return nil, common.CodeOK, err
	}
	orderID, err := argUint64(args, 1)
	if err != nil {
		return nil, common.CodeOK, err
	}
	m, ok := d.Engine.Market(symbol)
	if !ok {
		return nil, common.CodeOK, fmt.Errorf("unknown market %q", symbol)
	}
	o, ok := m.GetByID(orderID)
	if !ok {
		return nil, common.CodeNotFound, nil
	}
	return o.Snapshot(), common.CodeOK, nil
}

// --- book / depth ---

// orderBook handles ORDER_BOOK: [market, side, offset?, limit?].
func (d *Dispatcher) orderBook(args []json.RawMessage) (any, common.Code, error) {
	symbol, err := argString(args, 0)
	if err != nil {
		return nil, common.CodeOK, err
	}
	side, err := argSide(args, 1)
	if err != nil {
		return nil, common.CodeOK, err
	}
	offset, _ := argInt(args, 2)
	limit, lerr := argInt(args, 3)
	if lerr != nil || limit <= 0 {
		limit = d.OrderBookMaxLen
	}
	if limit > d.OrderBookMaxLen {
		limit = d.OrderBookMaxLen
	}

	m, ok := d.Engine.Market(symbol)
	if !ok {
		return nil, common.CodeOK, fmt.Errorf("unknown market %q", symbol)
	}
	var all []*market.Order
	if side == common.Ask {
		all = m.Asks()
	} else {
		all = m.Bids()
	}
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	page := all[offset:end]
	snaps := make([]market.Snapshot, 0, len(page))
	for _, o := range page {
		snaps = append(snaps, o.Snapshot())
	}
	return map[string]any{"total": len(all), "orders": snaps}, common.CodeOK, nil
}

// orderBookDepth handles ORDER_BOOK_DEPTH: [market, limit, interval?].
// Replies are cached by request fingerprint for a short TTL; the cached
// JSON is embedded directly as a raw result to avoid a redundant
// unmarshal/remarshal round trip.
func (d *Dispatcher) orderBookDepth(command uint32, body []byte, args []json.RawMessage) (any, common.Code, error) {
	symbol, err := argString(args, 0)
	if err != nil {
		return nil, common.CodeOK, err
	}
	limit, err := argInt(args, 1)
	if err != nil {
		return nil, common.CodeOK, err
	}
	interval, err := argDecOptional(args, 2, dec.Zero)
	if err != nil {
		return nil, common.CodeOK, err
	}

	fp := protocol.Fingerprint(command, body)
	if d.Cache != nil {
		if cached, ok := d.Cache.Get(fp); ok {
			return json.RawMessage(cached.Result), common.CodeOK, nil
		}
	}

	m, ok := d.Engine.Market(symbol)
	if !ok {
		return nil, common.CodeOK, fmt.Errorf("unknown market %q", symbol)
	}
	var book depth.Book
	if interval.Sign() > 0 {
		book = depth.GetMerge(m, limit, interval)
	} else {
		book = depth.Get(m, limit)
	}
	raw, merr := json.Marshal(book)
	if merr != nil {
		return nil, common.CodeInternal, nil
	}
	if d.Cache != nil {
		d.Cache.Set(fp, float64(time.Now().UnixNano())/1e9, raw)
	}
	return json.RawMessage(raw), common.CodeOK, nil
}

// --- market ---

func (d *Dispatcher) marketList(args []json.RawMessage) (any, common.Code, error) {
	markets := d.Engine.Markets()
	out := make([]map[string]any, 0, len(markets))
	for symbol, m := range markets {
		out = append(out, map[string]any{
			"market": symbol,
			"name":   m.Name,
			"stock":  m.Stock,
			"money":  m.Money,
		})
	}
	return out, common.CodeOK, nil
}

func (d *Dispatcher) marketSummary(args []json.RawMessage) (any, common.Code, error) {
	symbol, err := argString(args, 0)
	if err != nil {
		return nil, common.CodeOK, err
	}
	m, ok := d.Engine.Market(symbol)
	if !ok {
		return nil, common.CodeOK, fmt.Errorf("unknown market %q", symbol)
	}
	st := m.BookStatus()
	return map[string]any{
		"market":     symbol,
		"ask_count":  st.AskCount,
		"ask_amount": st.AskAmount.String(),
		"bid_count":  st.BidCount,
		"bid_amount": st.BidAmount.String(),
	}, common.CodeOK, nil
}

// marketRegister handles MARKET_REGISTER:
// [symbol, name, stock, money, init_price, delisting_ts]. The
// parameter row carries no min_amount/min_total/include_fee; this
// defaults them to zero/zero/false, a permissive market with no fee
// markup, the lowest-friction default for a newly listed pair.
func (d *Dispatcher) marketRegister(args []json.RawMessage) (any, common.Code, error) {
	symbol, err := argString(args, 0)
	if err != nil {
		return nil, common.CodeOK, err
	}
	name, err := argString(args, 1)
	if err != nil {
		return nil, common.CodeOK, err
	}
	stock, err := argString(args, 2)
	if err != nil {
		return nil, common.CodeOK, err
	}
	money, err := argString(args, 3)
	if err != nil {
		return nil, common.CodeOK, err
	}
	initPrice, err := argDec(args, 4)
	if err != nil {
		return nil, common.CodeOK, err
	}
	delistingTS, err := argUint64(args, 5)
	if err != nil {
		return nil, common.CodeOK, err
	}

	if rerr := d.Engine.RegisterMarket(symbol, name, stock, money, dec.Zero, dec.Zero, initPrice, false, uint32(delistingTS)); rerr != nil {
		return nil, common.CodeOK, rerr
	}
	return map[string]string{"status": "success", "market": symbol}, common.CodeOK, nil
}

// marketDetail handles MARKET_DETAIL: [market]. It combines static
// configuration with the book's live status, a combined config+status
// view in one reply rather than splitting it across separate commands.
func (d *Dispatcher) marketDetail(args []json.RawMessage) (any, common.Code, error) {
	symbol, err := argString(args, 0)
	if err != nil {
		return nil, common.CodeOK, err
	}
	m, ok := d.Engine.Market(symbol)
	if !ok {
		return nil, common.CodeOK, fmt.Errorf("unknown market %q", symbol)
	}
	st := m.BookStatus()
	return map[string]any{
		"market":        m.Symbol,
		"name":          m.Name,
		"stock":         m.Stock,
		"money":         m.Money,
		"stock_prec":    m.StockPrec,
		"money_prec":    m.MoneyPrec,
		"fee_prec":      m.FeePrec,
		"min_amount":    m.MinAmount.String(),
		"min_total":     m.MinTotal.String(),
		"last_price":    m.LastPrice.String(),
		"closing_price": m.ClosingPrice.String(),
		"include_fee":   m.IncludeFee,
		"delisting_ts":  m.DelistingTS,
		"ask_count":     st.AskCount,
		"ask_amount":    st.AskAmount.String(),
		"bid_count":     st.BidCount,
		"bid_amount":    st.BidAmount.String(),
	}, common.CodeOK, nil
}
