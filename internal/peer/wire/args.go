package wire

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Kind tags one argument value. It doubles as the protowire field number.
type Kind uint8

const (
	KindNil Kind = iota + 1
	KindInt
	KindUint
	KindBool
	KindFloat
	KindString
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindBool:
		return "bool"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one tagged argument.
type Value struct {
	kind Kind
	num  uint64
	str  string
	raw  []byte
}

func Nil() Value                 { return Value{kind: KindNil} }
func Int(v int64) Value          { return Value{kind: KindInt, num: uint64(v)} }
func Uint(v uint64) Value        { return Value{kind: KindUint, num: v} }
func Float(v float64) Value      { return Value{kind: KindFloat, num: math.Float64bits(v)} }
func String(v string) Value      { return Value{kind: KindString, str: v} }
func Bytes(v []byte) Value       { return Value{kind: KindBytes, raw: v} }
func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsNil() bool      { return v.kind == KindNil || v.kind == 0 }
func (v Value) AsInt() int64     { return int64(v.when(KindInt)) }
func (v Value) AsUint() uint64   { return v.when(KindUint) }
func (v Value) AsBool() bool     { return v.when(KindBool) != 0 }
func (v Value) AsFloat() float64 { return math.Float64frombits(v.when(KindFloat)) }

func Bool(v bool) Value {
	if v {
		return Value{kind: KindBool, num: 1}
	}
	return Value{kind: KindBool}
}

func (v Value) when(k Kind) uint64 {
	if v.kind != k {
		return 0
	}
	return v.num
}

// AsString returns the string, or "" for any other kind.
func (v Value) AsString() string {
	if v.kind != KindString {
		return ""
	}
	return v.str
}

// AsBytes returns the byte slice, or nil for any other kind.
func (v Value) AsBytes() []byte {
	if v.kind != KindBytes {
		return nil
	}
	return v.raw
}

// Args is an ordered argument (or result) list.
//
// Accessors never fail: a missing index or a kind mismatch yields the zero
// value, which is how unknown targets answer with a default result.
type Args []Value

func (a Args) At(i int) Value {
	if i < 0 || i >= len(a) {
		return Value{}
	}
	return a[i]
}

func (a Args) Int(i int) int64     { return a.At(i).AsInt() }
func (a Args) Uint(i int) uint64   { return a.At(i).AsUint() }
func (a Args) Bool(i int) bool     { return a.At(i).AsBool() }
func (a Args) Float(i int) float64 { return a.At(i).AsFloat() }
func (a Args) String(i int) string { return a.At(i).AsString() }
func (a Args) Bytes(i int) []byte  { return a.At(i).AsBytes() }

// AppendArgs appends the protowire encoding of a to b.
func AppendArgs(b []byte, a Args) []byte {
	for _, v := range a {
		num := protowire.Number(v.kind)
		switch v.kind {
		case KindInt:
			b = protowire.AppendTag(b, num, protowire.VarintType)
			b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(v.num)))
		case KindUint, KindBool:
			b = protowire.AppendTag(b, num, protowire.VarintType)
			b = protowire.AppendVarint(b, v.num)
		case KindFloat:
			b = protowire.AppendTag(b, num, protowire.Fixed64Type)
			b = protowire.AppendFixed64(b, v.num)
		case KindString:
			b = protowire.AppendTag(b, num, protowire.BytesType)
			b = protowire.AppendString(b, v.str)
		case KindBytes:
			b = protowire.AppendTag(b, num, protowire.BytesType)
			b = protowire.AppendBytes(b, v.raw)
		default:
			b = protowire.AppendTag(b, protowire.Number(KindNil), protowire.VarintType)
			b = protowire.AppendVarint(b, 0)
		}
	}
	return b
}

// ConsumeArgs decodes a complete argument list from b.
func ConsumeArgs(b []byte) (Args, error) {
	var out Args
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("wire: arg tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		kind := Kind(num)
		var v Value
		switch {
		case kind == KindNil && typ == protowire.VarintType:
			_, n = protowire.ConsumeVarint(b)
			v = Nil()
		case kind == KindInt && typ == protowire.VarintType:
			var x uint64
			x, n = protowire.ConsumeVarint(b)
			v = Int(protowire.DecodeZigZag(x))
		case (kind == KindUint || kind == KindBool) && typ == protowire.VarintType:
			var x uint64
			x, n = protowire.ConsumeVarint(b)
			v = Value{kind: kind, num: x}
			if kind == KindBool {
				v = Bool(protowire.DecodeBool(x))
			}
		case kind == KindFloat && typ == protowire.Fixed64Type:
			var x uint64
			x, n = protowire.ConsumeFixed64(b)
			v = Value{kind: KindFloat, num: x}
		case kind == KindString && typ == protowire.BytesType:
			var s []byte
			s, n = protowire.ConsumeBytes(b)
			v = String(string(s))
		case kind == KindBytes && typ == protowire.BytesType:
			var s []byte
			s, n = protowire.ConsumeBytes(b)
			v = Bytes(append([]byte(nil), s...))
		default:
			return nil, fmt.Errorf("wire: unexpected arg field %d type %d", num, typ)
		}
		if n < 0 {
			return nil, fmt.Errorf("wire: arg value: %w", protowire.ParseError(n))
		}
		b = b[n:]
		out = append(out, v)
	}
	return out, nil
}
