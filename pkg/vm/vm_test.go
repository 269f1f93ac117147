package vm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/loxvm/pkg/natives"
)

// newTestVM builds a VM with clock() registered and PRINT output captured
// in a buffer, the shape every end-to-end scenario test below shares.
func newTestVM(t *testing.T) (*VM, *bytes.Buffer) {
	t.Helper()
	v := New(false, nil)
	var out bytes.Buffer
	v.Out = &out
	natives.Register(v.DefineNative)
	return v, &out
}

// TestEndToEndScenarios exercises spec.md §8's literal-input scenarios.
func TestEndToEndScenarios(t *testing.T) {
	cases := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "operator precedence",
			source: "print 1 + 2 * 3;",
			want:   "7\n",
		},
		{
			name:   "string interning equality",
			source: `var a = "hi"; var b = "hi"; print a == b;`,
			want:   "true\n",
		},
		{
			name: "closure captures upvalue across calls",
			source: `fun make() { var x = 0; fun inc() { x = x + 1; return x; } return inc; }
			          var c = make(); print c(); print c(); print c();`,
			want: "1\n2\n3\n",
		},
		{
			name:   "recursive fibonacci",
			source: `fun fib(n) { if (n < 2) return n; return fib(n-1) + fib(n-2); } print fib(10);`,
			want:   "55\n",
		},
		{
			name:   "uninitialized var reads nil",
			source: "var x; print x;",
			want:   "nil\n",
		},
		{
			name:   "instance field get and set",
			source: `class Pair {} var p = Pair(); p.first = 1; p.second = 2; print p.first + p.second;`,
			want:   "3\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, out := newTestVM(t)
			result := v.Interpret(tc.source)
			require.Equal(t, InterpretOK, result, "compile errors: %v", v.CompileErrors())
			require.Equal(t, tc.want, out.String())
		})
	}
}

func TestUndefinedVariableIsRuntimeError(t *testing.T) {
	v, _ := newTestVM(t)
	result := v.Interpret("print undefined_name;")
	require.Equal(t, InterpretRuntimeError, result)
}

func TestCompileErrorStopsBeforeRunning(t *testing.T) {
	v, out := newTestVM(t)
	result := v.Interpret("print ;")
	require.Equal(t, InterpretCompileError, result)
	require.NotEmpty(t, v.CompileErrors())
	require.Empty(t, out.String())
}

func TestGlobalAssignmentToUndefinedNameIsRuntimeError(t *testing.T) {
	v, _ := newTestVM(t)
	result := v.Interpret("not_declared = 1;")
	require.Equal(t, InterpretRuntimeError, result)
}

func TestNativeClockIsCallable(t *testing.T) {
	v, out := newTestVM(t)
	result := v.Interpret("print clock() >= 0;")
	require.Equal(t, InterpretOK, result)
	require.Equal(t, "true\n", out.String())
}

func TestWhileAndForLoops(t *testing.T) {
	v, out := newTestVM(t)
	result := v.Interpret(`
		var total = 0;
		for (var i = 0; i < 5; i = i + 1) {
			total = total + i;
		}
		print total;
		var n = 3;
		while (n > 0) {
			n = n - 1;
		}
		print n;
	`)
	require.Equal(t, InterpretOK, result, "compile errors: %v", v.CompileErrors())
	require.Equal(t, "10\n0\n", out.String())
}

func TestLogicalOperatorsShortCircuit(t *testing.T) {
	v, out := newTestVM(t)
	result := v.Interpret(`
		fun boom() { print "should not print"; return true; }
		print false and boom();
		print true or boom();
	`)
	require.Equal(t, InterpretOK, result, "compile errors: %v", v.CompileErrors())
	require.Equal(t, "false\ntrue\n", out.String())
}
