// Package value defines the tagged Value union that flows through the
// compiler and VM, plus the Obj header every heap-allocated object embeds.
//
// Values are small and copied by value (like a conventional bytecode package
// keeps Instruction a plain struct): nil, bool and number never touch the
// heap, and obj values carry a pointer into memory owned by the garbage
// collector (see pkg/gc).
package value

import (
	"fmt"
	"math"
)

// Type tags a Value's payload. The set is closed: Blacken, Equal and the
// printer all switch on it.
type Type int

const (
	Nil Type = iota
	Bool
	Number
	Obj
)

// Value is a tagged union: exactly one of the payload fields is meaningful,
// selected by Type. This mirrors the C original's NaN-untagged union rather
// than Go's usual interface{}, because the GC and equality rules need to
// distinguish "no value" (Nil) from "false" and from "the number zero"
// without an extra allocation per Value.
type Value struct {
	Type Type
	b    bool
	n    float64
	o    Object
}

// Object is implemented by every heap-allocated object header. Concrete
// object kinds (string, function, closure, ...) live in package object,
// which embeds Header to satisfy this interface; value itself never knows
// their shape, only that they are markable and chain onto the all-objects
// list.
type Object interface {
	// ObjType reports which variant this object is, for switches in the
	// GC blackener, the printer, and Equal.
	ObjType() ObjType
	// IsMarked/SetMarked implement the GC's tri-color mark bit.
	IsMarked() bool
	SetMarked(bool)
	// NextObj/SetNextObj thread this object onto the VM's intrusive
	// all-objects list in allocation order.
	NextObj() Object
	SetNextObj(Object)
	String() string
}

// ObjType enumerates the closed set of heap object variants.
type ObjType int

const (
	ObjStringType ObjType = iota
	ObjFunctionType
	ObjNativeType
	ObjClosureType
	ObjUpvalueType
	ObjClassType
	ObjInstanceType
	ObjBoundMethodType
)

func NilValue() Value            { return Value{Type: Nil} }
func BoolValue(b bool) Value     { return Value{Type: Bool, b: b} }
func NumberValue(n float64) Value { return Value{Type: Number, n: n} }
func ObjValue(o Object) Value    { return Value{Type: Obj, o: o} }

func (v Value) IsNil() bool    { return v.Type == Nil }
func (v Value) IsBool() bool   { return v.Type == Bool }
func (v Value) IsNumber() bool { return v.Type == Number }
func (v Value) IsObj() bool    { return v.Type == Obj }

func (v Value) AsBool() bool     { return v.b }
func (v Value) AsNumber() float64 { return v.n }
func (v Value) AsObj() Object    { return v.o }

// IsObjType reports whether v is a heap object of the given variant.
func (v Value) IsObjType(t ObjType) bool {
	return v.Type == Obj && v.o.ObjType() == t
}

// IsFalsey implements the language's truthiness rule: nil and false are
// falsey, everything else (including 0 and the empty string) is truthy.
func IsFalsey(v Value) bool {
	return v.Type == Nil || (v.Type == Bool && !v.b)
}

// Equal implements value equality: same tag and same payload. Numbers
// compare by IEEE-754 rules (NaN != NaN); obj values compare by identity,
// which interning makes equivalent to string equality for strings.
func Equal(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case Nil:
		return true
	case Bool:
		return a.b == b.b
	case Number:
		return a.n == b.n
	case Obj:
		return a.o == b.o
	default:
		return false
	}
}

// String renders v the way PRINT does: no trailing newline, numbers use
// Go's shortest round-trippable form, booleans/nil spelled as keywords.
func (v Value) String() string {
	switch v.Type {
	case Nil:
		return "nil"
	case Bool:
		if v.b {
			return "true"
		}
		return "false"
	case Number:
		if math.IsInf(v.n, 0) || math.IsNaN(v.n) {
			return fmt.Sprintf("%v", v.n)
		}
		return formatNumber(v.n)
	case Obj:
		return v.o.String()
	default:
		return "<invalid value>"
	}
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return fmt.Sprintf("%g", n)
	}
	return fmt.Sprintf("%g", n)
}

// Header is the embeddable Obj bookkeeping (mark bit + all-objects link)
// that every concrete object in package object embeds to satisfy Object.
type Header struct {
	marked bool
	next   Object
}

func (h *Header) IsMarked() bool      { return h.marked }
func (h *Header) SetMarked(m bool)    { h.marked = m }
func (h *Header) NextObj() Object     { return h.next }
func (h *Header) SetNextObj(o Object) { h.next = o }

// ObjString is the sole string representation: interned, length-known,
// with a precomputed FNV-1a hash so the hash table and the interning
// check never rehash a live string.
type ObjString struct {
	Header
	Chars string
	Hash  uint32
}

func (s *ObjString) ObjType() ObjType { return ObjStringType }
func (s *ObjString) String() string   { return s.Chars }

// HashString computes the 32-bit FNV-1a hash used to intern and to probe
// the hash table, matching the C original bit for bit.
func HashString(s string) uint32 {
	var hash uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}
