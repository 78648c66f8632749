package evm

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ConvertArgs converts raw constructor argument values, as decoded from a
// configuration file, into the Go types go-ethereum packs for inputs.
//
// Supported solidity types: address, bool, string, bytes, bytesN, intN,
// uintN, and fixed or dynamic arrays of those. Integers may be given as
// numbers or as decimal/0x-hex strings; large values should be strings.
func ConvertArgs(inputs abi.Arguments, raw []any) ([]any, error) {
	if len(raw) != len(inputs) {
		return nil, fmt.Errorf("constructor expects %d argument(s), got %d", len(inputs), len(raw))
	}
	out := make([]any, len(raw))
	for i, in := range inputs {
		v, err := convert(in.Type, raw[i])
		if err != nil {
			name := in.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, fmt.Errorf("constructor argument %s (%s): %w", name, in.Type.String(), err)
		}
		out[i] = v
	}
	return out, nil
}

func convert(t abi.Type, v any) (any, error) {
	// Values already in their packed Go type pass through.
	if v != nil && reflect.TypeOf(v) == t.GetType() {
		return v, nil
	}

	switch t.T {
	case abi.AddressTy:
		s, ok := v.(string)
		if !ok || !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %v", v)
		}
		return common.HexToAddress(s), nil

	case abi.BoolTy:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("invalid bool %q", b)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("invalid bool %v", v)

	case abi.StringTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", v)
		}
		return s, nil

	case abi.BytesTy:
		return decodeBytes(v)

	case abi.FixedBytesTy:
		b, err := decodeBytes(v)
		if err != nil {
			return nil, err
		}
		if len(b) > t.Size {
			return nil, fmt.Errorf("%d bytes do not fit in bytes%d", len(b), t.Size)
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil

	case abi.IntTy, abi.UintTy:
		return convertInt(t, v)

	case abi.SliceTy, abi.ArrayTy:
		items, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected a list, got %T", v)
		}
		if t.T == abi.ArrayTy && len(items) != t.Size {
			return nil, fmt.Errorf("expected %d elements, got %d", t.Size, len(items))
		}
		var out reflect.Value
		if t.T == abi.ArrayTy {
			out = reflect.New(t.GetType()).Elem()
		} else {
			out = reflect.MakeSlice(t.GetType(), len(items), len(items))
		}
		for i, item := range items {
			elem, err := convert(*t.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(elem))
		}
		return out.Interface(), nil
	}
	return nil, fmt.Errorf("unsupported constructor argument type %s", t.String())
}

func decodeBytes(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected 0x-prefixed hex, got %T", v)
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}

var bigIntType = reflect.TypeOf((*big.Int)(nil))

// convertInt produces the Go type the abi packer requires: the matching
// sized integer for 8/16/32/64 bits, *big.Int for every other size.
func convertInt(t abi.Type, v any) (any, error) {
	n, err := toBig(v)
	if err != nil {
		return nil, err
	}

	signed := t.T == abi.IntTy
	if !signed && n.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s for unsigned type", n)
	}
	bits := n.BitLen()
	if signed {
		// One bit for the sign; -2^(k-1) still fits in k bits.
		lowest := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1)))
		if n.Sign() < 0 && n.Cmp(lowest) < 0 || n.Sign() >= 0 && bits > t.Size-1 {
			return nil, fmt.Errorf("value %s overflows %s", n, t.String())
		}
	} else if bits > t.Size {
		return nil, fmt.Errorf("value %s overflows %s", n, t.String())
	}

	rt := t.GetType()
	if rt == bigIntType {
		return n, nil
	}
	if signed {
		return reflect.ValueOf(n.Int64()).Convert(rt).Interface(), nil
	}
	return reflect.ValueOf(n.Uint64()).Convert(rt).Interface(), nil
}

func toBig(v any) (*big.Int, error) {
	switch n := v.(type) {
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return nil, fmt.Errorf("number %v is not an exact integer; quote large values", n)
		}
		return big.NewInt(int64(n)), nil
	case json.Number:
		return parseBig(n.String())
	case string:
		return parseBig(n)
	case *big.Int:
		return new(big.Int).Set(n), nil
	}
	return nil, fmt.Errorf("expected an integer, got %T", v)
}

func parseBig(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}
