// Package bytecodefile implements the compiled-chunk file format ("compile"
// and "disassemble" CLI commands use it): a script's Function, with its
// nested Functions and constant pool, serialized so it can be re-executed
// without re-compiling source.
//
// An earlier version of this pipeline shipped a hand-rolled binary Encode/Decode
// pair for its own instruction format. Rather than hand-roll a second
// bespoke binary format for this VM's chunk shape, we use the standard
// library's encoding/gob over a serializable mirror of Function/Chunk —
// gob already solves versioned struct (de)serialization, and nothing in
// the retrieved pack offers a more idiomatic alternative for this (see
// DESIGN.md's Open Question decision on this point).
package bytecodefile

import (
	"encoding/gob"
	"fmt"
	"io"

	"github.com/kristofer/loxvm/pkg/gc"
	"github.com/kristofer/loxvm/pkg/object"
	"github.com/kristofer/loxvm/pkg/value"
)

const magic = "LOXC"

// fnRecord mirrors object.Function/chunk.Chunk in a gob-friendly shape:
// plain fields and slices only, no interfaces.
type fnRecord struct {
	HasName      bool
	Name         string
	Arity        int
	UpvalueCount int
	Code         []byte
	Lines        []int
	Constants    []valueRecord
}

// valueRecord mirrors value.Value. Tag selects which field is meaningful,
// the same discriminated-union shape Value itself uses.
type valueRecord struct {
	Tag    byte // 0=nil 1=bool 2=number 3=string 4=function
	Bool   bool
	Number float64
	String string
	Fn     *fnRecord
}

func init() {
	gob.Register(fnRecord{})
}

// Encode writes fn (the top-level script, typically) to w in .loxc format.
func Encode(fn *object.Function, w io.Writer) error {
	if _, err := w.Write([]byte(magic)); err != nil {
		return err
	}
	rec := toRecord(fn)
	return gob.NewEncoder(w).Encode(rec)
}

// Decode reads a .loxc stream from r, rebuilding every Function and
// interned string/constant through collector so the result is a normal,
// GC-owned Function ready to hand to vm.call.
func Decode(r io.Reader, collector *gc.Collector) (*object.Function, error) {
	var got [4]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return nil, err
	}
	if string(got[:]) != magic {
		return nil, fmt.Errorf("bytecodefile: bad magic %q, not a .loxc file", got)
	}
	var rec fnRecord
	if err := gob.NewDecoder(r).Decode(&rec); err != nil {
		return nil, err
	}
	return fromRecord(&rec, collector), nil
}

func toRecord(fn *object.Function) *fnRecord {
	rec := &fnRecord{
		Arity:        fn.Arity,
		UpvalueCount: fn.UpvalueCount,
		Code:         append([]byte(nil), fn.Chunk.Code...),
		Lines:        append([]int(nil), fn.Chunk.Lines...),
	}
	if fn.Name != nil {
		rec.HasName = true
		rec.Name = fn.Name.Chars
	}
	for _, c := range fn.Chunk.Constants {
		rec.Constants = append(rec.Constants, toValueRecord(c))
	}
	return rec
}

func toValueRecord(v value.Value) valueRecord {
	switch v.Type {
	case value.Nil:
		return valueRecord{Tag: 0}
	case value.Bool:
		return valueRecord{Tag: 1, Bool: v.AsBool()}
	case value.Number:
		return valueRecord{Tag: 2, Number: v.AsNumber()}
	case value.Obj:
		switch o := v.AsObj().(type) {
		case *value.ObjString:
			return valueRecord{Tag: 3, String: o.Chars}
		case *object.Function:
			return valueRecord{Tag: 4, Fn: toRecord(o)}
		}
	}
	return valueRecord{Tag: 0}
}

func fromRecord(rec *fnRecord, collector *gc.Collector) *object.Function {
	fn := collector.NewFunction()
	fn.Arity = rec.Arity
	fn.UpvalueCount = rec.UpvalueCount
	fn.Chunk.Code = append([]byte(nil), rec.Code...)
	fn.Chunk.Lines = append([]int(nil), rec.Lines...)
	if rec.HasName {
		fn.Name = collector.AllocateString(rec.Name)
	}
	for _, c := range rec.Constants {
		fn.Chunk.Constants = append(fn.Chunk.Constants, fromValueRecord(&c, collector))
	}
	return fn
}

func fromValueRecord(rec *valueRecord, collector *gc.Collector) value.Value {
	switch rec.Tag {
	case 1:
		return value.BoolValue(rec.Bool)
	case 2:
		return value.NumberValue(rec.Number)
	case 3:
		return value.ObjValue(collector.AllocateString(rec.String))
	case 4:
		return value.ObjValue(fromRecord(rec.Fn, collector))
	default:
		return value.NilValue()
	}
}
