package evm

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustType(t *testing.T, s string) abi.Type {
	t.Helper()
	typ, err := abi.NewType(s, "", nil)
	require.NoError(t, err)
	return typ
}

func TestConvertArgs(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	tests := []struct {
		name    string
		typ     string
		in      any
		want    any
		wantErr string
	}{
		{name: "address", typ: "address", in: "0x00000000000000000000000000000000000000aa", want: owner},
		{name: "address passthrough", typ: "address", in: owner, want: owner},
		{name: "invalid address", typ: "address", in: "0x1234", wantErr: "invalid address"},
		{name: "bool", typ: "bool", in: true, want: true},
		{name: "bool from string", typ: "bool", in: "false", want: false},
		{name: "invalid bool", typ: "bool", in: "maybe", wantErr: "invalid bool"},
		{name: "string", typ: "string", in: "hello", want: "hello"},
		{name: "string from number", typ: "string", in: 1, wantErr: "expected a string"},
		{name: "bytes", typ: "bytes", in: "0xdeadbeef", want: []byte{0xde, 0xad, 0xbe, 0xef}},
		{name: "bytes without prefix", typ: "bytes", in: "deadbeef", wantErr: "invalid hex"},
		{name: "bytes4", typ: "bytes4", in: "0xdeadbeef", want: [4]byte{0xde, 0xad, 0xbe, 0xef}},
		{name: "bytes32 right padded", typ: "bytes32", in: "0x01", want: [32]byte{0x01}},
		{name: "bytes2 too long", typ: "bytes2", in: "0x010203", wantErr: "do not fit in bytes2"},
		{name: "uint8", typ: "uint8", in: 255, want: uint8(255)},
		{name: "uint8 overflow", typ: "uint8", in: 256, wantErr: "overflows uint8"},
		{name: "uint64 from float", typ: "uint64", in: float64(42), want: uint64(42)},
		{name: "uint negative", typ: "uint32", in: -1, wantErr: "negative value"},
		{name: "uint24 is big", typ: "uint24", in: 70000, want: big.NewInt(70000)},
		{name: "uint256 from decimal string", typ: "uint256", in: "1000000000000000000000000",
			want: new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)},
		{name: "uint256 from hex string", typ: "uint256", in: "0xff", want: big.NewInt(255)},
		{name: "uint256 from json number", typ: "uint256", in: json.Number("12"), want: big.NewInt(12)},
		{name: "int8 min", typ: "int8", in: -128, want: int8(-128)},
		{name: "int8 overflow", typ: "int8", in: 128, wantErr: "overflows int8"},
		{name: "int8 underflow", typ: "int8", in: -129, wantErr: "overflows int8"},
		{name: "int256 negative", typ: "int256", in: "-5", want: big.NewInt(-5)},
		{name: "fractional number", typ: "uint256", in: 1.5, wantErr: "not an exact integer"},
		{name: "invalid integer", typ: "uint256", in: "ten", wantErr: "invalid integer"},
		{name: "address slice", typ: "address[]", in: []any{"0x00000000000000000000000000000000000000aa"},
			want: []common.Address{owner}},
		{name: "uint8 array", typ: "uint8[2]", in: []any{1, 2}, want: [2]uint8{1, 2}},
		{name: "array length mismatch", typ: "uint8[2]", in: []any{1}, wantErr: "expected 2 elements"},
		{name: "bad element", typ: "uint8[]", in: []any{1, 300}, wantErr: "element 1"},
		{name: "slice from scalar", typ: "string[]", in: "a", wantErr: "expected a list"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs := abi.Arguments{{Name: "value", Type: mustType(t, tt.typ)}}
			got, err := ConvertArgs(inputs, []any{tt.in})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Contains(t, err.Error(), "constructor argument value ("+tt.typ+")")
				return
			}
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])

			// Whatever ConvertArgs returns must be accepted by the packer.
			_, err = inputs.Pack(got...)
			assert.NoError(t, err)
		})
	}
}

func TestConvertArgs_Count(t *testing.T) {
	inputs := abi.Arguments{
		{Name: "a", Type: mustType(t, "uint256")},
		{Type: mustType(t, "string")},
	}

	_, err := ConvertArgs(inputs, []any{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constructor expects 2 argument(s), got 1")

	_, err = ConvertArgs(inputs, []any{1, 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constructor argument 1 (string)", "unnamed inputs are reported by index")

	got, err := ConvertArgs(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
