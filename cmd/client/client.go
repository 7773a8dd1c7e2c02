// Command client is a thin CLI for exercising a running server: it
// encodes one positional-argument request as a protocol.Frame, sends
// it, and prints the decoded reply.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"fenrir/internal/dispatch"
	"fenrir/internal/protocol"
)

var commandsByName = map[string]uint32{
	"balance_query":    dispatch.BalanceQuery,
	"balance_update":   dispatch.BalanceUpdate,
	"asset_list":       dispatch.AssetList,
	"asset_summary":    dispatch.AssetSummary,
	"asset_register":   dispatch.AssetRegister,
	"order_put_limit":  dispatch.OrderPutLimit,
	"order_put_market": dispatch.OrderPutMarket,
	"order_put_aon":    dispatch.OrderPutAON,
	"order_put_fok":    dispatch.OrderPutFOK,
	"order_query":      dispatch.OrderQuery,
	"order_cancel":     dispatch.OrderCancel,
	"order_book":       dispatch.OrderBook,
	"order_book_depth": dispatch.OrderBookDepth,
	"order_detail":     dispatch.OrderDetail,
	"market_list":      dispatch.MarketList,
	"market_summary":   dispatch.MarketSummary,
	"market_register":  dispatch.MarketRegister,
	"market_detail":    dispatch.MarketDetail,
}

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9009", "address of the exchange server")
	command := flag.String("command", "", "command name, e.g. order_put_limit")
	argsStr := flag.String("args", "", "comma-separated positional arguments")
	reqID := flag.Uint64("req-id", 1, "request id echoed back in the reply")
	flag.Parse()

	if *command == "" {
		fmt.Println("Error: -command is required.")
		flag.Usage()
		os.Exit(1)
	}
	cmd, ok := commandsByName[*command]
	if !ok {
		fmt.Printf("Error: unknown command %q\n", *command)
		os.Exit(1)
	}

	body, err := encodeArgs(*argsStr)
	if err != nil {
		fmt.Printf("Error encoding arguments: %v\n", err)
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		fmt.Printf("failed to connect to %s: %v\n", *serverAddr, err)
		os.Exit(1)
	}
	defer conn.Close()

	req := &protocol.Frame{
		Type:    protocol.PkgRequest,
		Command: cmd,
		ReqID:   *reqID,
		Body:    body,
	}
	if err := protocol.WriteFrame(conn, req); err != nil {
		fmt.Printf("failed to send request: %v\n", err)
		os.Exit(1)
	}

	reply, err := protocol.ReadFrame(conn)
	if err != nil {
		fmt.Printf("failed to read reply: %v\n", err)
		os.Exit(1)
	}

	var pretty map[string]any
	if err := json.Unmarshal(reply.Body, &pretty); err != nil {
		fmt.Println(string(reply.Body))
		return
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
}

// encodeArgs turns a comma-separated CLI argument string into the JSON
// array of positional parameters every command expects. Each piece is
// encoded as a JSON number or bool when it parses as one, otherwise as
// a JSON string, so e.g. "1,BTCUSD,ASK,0.5,10000,0.002" becomes
// [1,"BTCUSD","ASK","0.5",10000,"0.002"].
func encodeArgs(raw string) ([]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return json.Marshal([]any{})
	}
	parts := strings.Split(raw, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if n, err := strconv.ParseUint(p, 10, 64); err == nil {
			out = append(out, n)
			continue
		}
		if b, err := strconv.ParseBool(p); err == nil {
			out = append(out, b)
			continue
		}
		out = append(out, p)
	}
	return json.Marshal(out)
}
