// Package test holds end-to-end scenarios that exercise the lexer,
// compiler and VM together as the CLI does: source text in, stdout text
// out. Unit-level behavior of individual packages lives alongside them in
// their own _test.go files; this package only checks the whole pipeline.
package test

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/loxvm/pkg/natives"
	"github.com/kristofer/loxvm/pkg/vm"
)

func run(t *testing.T, source string) (string, vm.InterpretResult) {
	t.Helper()
	v := vm.New(false, nil)
	var out bytes.Buffer
	v.Out = &out
	natives.Register(v.DefineNative)
	result := v.Interpret(source)
	return out.String(), result
}

func TestArithmeticAndPrecedence(t *testing.T) {
	out, result := run(t, `
		print 2 + 3 * 4;
		print (2 + 3) * 4;
		print 10 / 2 - 1;
		print -5 + 10;
	`)
	require.Equal(t, vm.InterpretOK, result)
	require.Equal(t, "14\n20\n4\n5\n", out)
}

func TestStringConcatenationAndComparison(t *testing.T) {
	out, result := run(t, `
		print "foo" + "bar";
		print "a" == "a";
		print "a" == "b";
		print 1 < 2 and 2 < 3;
	`)
	require.Equal(t, vm.InterpretOK, result)
	require.Equal(t, "foobar\ntrue\nfalse\ntrue\n", out)
}

func TestVariableScopingAndShadowing(t *testing.T) {
	out, result := run(t, `
		var a = "outer";
		{
			var a = "inner";
			print a;
		}
		print a;
	`)
	require.Equal(t, vm.InterpretOK, result)
	require.Equal(t, "inner\nouter\n", out)
}

func TestClosuresEachGetOwnState(t *testing.T) {
	out, result := run(t, `
		fun counter() {
			var n = 0;
			fun next() { n = n + 1; return n; }
			return next;
		}
		var c1 = counter();
		var c2 = counter();
		print c1();
		print c1();
		print c2();
	`)
	require.Equal(t, vm.InterpretOK, result)
	require.Equal(t, "1\n2\n1\n", out)
}

func TestClassInstancesHaveIndependentFields(t *testing.T) {
	out, result := run(t, `
		class Point {}
		var p1 = Point();
		var p2 = Point();
		p1.x = 1;
		p2.x = 2;
		print p1.x;
		print p2.x;
	`)
	require.Equal(t, vm.InterpretOK, result)
	require.Equal(t, "1\n2\n", out)
}

func TestRuntimeErrorOnUndefinedVariableIncludesStackTrace(t *testing.T) {
	v := vm.New(false, nil)
	var out bytes.Buffer
	v.Out = &out

	r, w, err := os.Pipe()
	require.NoError(t, err)
	oldStderr := os.Stderr
	os.Stderr = w
	result := v.Interpret(`
		fun greet() { print hello; }
		greet();
	`)
	os.Stderr = oldStderr
	require.NoError(t, w.Close())
	stderr, err := io.ReadAll(r)
	require.NoError(t, err)

	require.Equal(t, vm.InterpretRuntimeError, result)
	require.Contains(t, string(stderr), "Undefined variable 'hello'.")
	require.Contains(t, string(stderr), "[line 2] in greet()")
	require.Contains(t, string(stderr), "[line 3] in script")
}

func TestDivideByZeroProducesInfNotCrash(t *testing.T) {
	out, result := run(t, `print 1 / 0;`)
	require.Equal(t, vm.InterpretOK, result)
	require.Equal(t, "+Inf\n", out)
}

func TestCompileErrorReportsDiagnostics(t *testing.T) {
	v := vm.New(false, nil)
	result := v.Interpret(`var = 1;`)
	require.Equal(t, vm.InterpretCompileError, result)
	require.NotEmpty(t, v.CompileErrors())
}
