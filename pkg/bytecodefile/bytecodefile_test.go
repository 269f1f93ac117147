package bytecodefile

import (
	"bytes"
	"testing"

	"github.com/kristofer/loxvm/pkg/compiler"
	"github.com/kristofer/loxvm/pkg/gc"
	"github.com/kristofer/loxvm/pkg/vm"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	collector := gc.New(false, nil)
	c := compiler.New(collector)
	fn, ok := c.Compile(`fun add(a, b) { return a + b; } print add(1, 2);`)
	if !ok {
		t.Fatalf("compile failed: %v", c.Errors())
	}

	var buf bytes.Buffer
	if err := Encode(fn, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(&buf, gc.New(false, nil))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.Arity != fn.Arity {
		t.Errorf("Arity = %d, want %d", decoded.Arity, fn.Arity)
	}
	if len(decoded.Chunk.Code) != len(fn.Chunk.Code) {
		t.Errorf("Code length = %d, want %d", len(decoded.Chunk.Code), len(fn.Chunk.Code))
	}
	if len(decoded.Chunk.Constants) != len(fn.Chunk.Constants) {
		t.Errorf("Constants length = %d, want %d", len(decoded.Chunk.Constants), len(fn.Chunk.Constants))
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode(bytes.NewBufferString("NOPE"), gc.New(false, nil))
	if err == nil {
		t.Fatalf("expected an error decoding a stream with the wrong magic")
	}
}

// TestDecodedBytecodeRuns confirms a .loxc round trip produces a Function
// the VM can execute directly, without ever re-compiling the source.
func TestDecodedBytecodeRuns(t *testing.T) {
	v := vm.New(false, nil)
	var out bytes.Buffer
	v.Out = &out

	fn, ok := v.CompileOnly(`fun add(a, b) { return a + b; } print add(1, 2);`)
	if !ok {
		t.Fatalf("compile failed: %v", v.CompileErrors())
	}

	var buf bytes.Buffer
	if err := Encode(fn, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(&buf, v.GC)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if result := v.Run(decoded); result != vm.InterpretOK {
		t.Fatalf("Run returned %v", result)
	}
	if out.String() != "3\n" {
		t.Fatalf("got output %q, want %q", out.String(), "3\n")
	}
}
