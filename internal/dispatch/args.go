package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"fenrir/internal/common"
	dec "fenrir/internal/decimal"
)

// ErrInvalidArgument is returned by the arg-decoding helpers below on
// arity or type mismatch; it always maps to wire error code 1.
var ErrInvalidArgument = errors.New("dispatch: invalid argument")

func argAt(args []json.RawMessage, i int) (json.RawMessage, error) {
	if i < 0 || i >= len(args) {
		return nil, fmt.Errorf("%w: missing positional argument %d", ErrInvalidArgument, i)
	}
	return args[i], nil
}

func argString(args []json.RawMessage, i int) (string, error) {
	raw, err := argAt(args, i)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: argument %d not a string", ErrInvalidArgument, i)
	}
	return s, nil
}

func argUint64(args []json.RawMessage, i int) (uint64, error) {
	raw, err := argAt(args, i)
	if err != nil {
		return 0, err
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var parsed uint64
		if _, err := fmt.Sscanf(s, "%d", &parsed); err == nil {
			return parsed, nil
		}
	}
	return 0, fmt.Errorf("%w: argument %d not an integer", ErrInvalidArgument, i)
}

func argInt(args []json.RawMessage, i int) (int, error) {
	n, err := argUint64(args, i)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func argBool(args []json.RawMessage, i int) (bool, error) {
	raw, err := argAt(args, i)
	if err != nil {
		return false, err
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, fmt.Errorf("%w: argument %d not a bool", ErrInvalidArgument, i)
	}
	return b, nil
}

func argDec(args []json.RawMessage, i int) (dec.Dec, error) {
	s, err := argString(args, i)
	if err != nil {
		return dec.Dec{}, err
	}
	d, err := dec.Parse(s)
	if err != nil {
		return dec.Dec{}, fmt.Errorf("%w: argument %d: %s", ErrInvalidArgument, i, err)
	}
	return d, nil
}

// argDecOptional parses args[i] as a Dec, returning def if the argument
// is absent (used for the optional interval on ORDER_BOOK_DEPTH).
func argDecOptional(args []json.RawMessage, i int, def dec.Dec) (dec.Dec, error) {
	if i >= len(args) {
		return def, nil
	}
	return argDec(args, i)
}

// argRaw returns the raw JSON value at i, or a JSON null if absent —
// used for the free-form detail object on BALANCE_UPDATE.
func argRaw(args []json.RawMessage, i int) json.RawMessage {
	if i < 0 || i >= len(args) {
		return json.RawMessage("null")
	}
	return args[i]
}

// argSide parses "ASK"/"BID" (any case) into common.Side.
func argSide(args []json.RawMessage, i int) (common.Side, error) {
	s, err := argString(args, i)
	if err != nil {
		return 0, err
	}
	switch strings.ToUpper(s) {
	case "ASK", "SELL":
		return common.Ask, nil
	case "BID", "BUY":
		return common.Bid, nil
	default:
		return 0, fmt.Errorf("%w: unknown side %q", ErrInvalidArgument, s)
	}
}

// restStrings collects every remaining positional argument from i
// onward as strings (used for the variadic asset/market name lists).
func restStrings(args []json.RawMessage, i int) ([]string, error) {
	var out []string
	for j := i; j < len(args); j++ {
		s, err := argString(args, j)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
