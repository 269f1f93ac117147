// Command loxvm is the CLI for the VM: a REPL, a file runner, and a
// compile/disassemble pair for the .loxc bytecode file format, in the
// shape of a subcommand-per-os.Args[1] CLI (dispatch on os.Args[1],
// one function per command) with flags moved onto github.com/spf13/pflag.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/kristofer/loxvm/internal/logging"
	"github.com/kristofer/loxvm/pkg/bytecodefile"
	"github.com/kristofer/loxvm/pkg/natives"
	"github.com/kristofer/loxvm/pkg/vm"
)

const version = "0.1.0"

func main() {
	var (
		traceExec = pflag.Bool("trace-exec", false, "print each instruction and the stack as it executes")
		traceGC   = pflag.Bool("trace-gc", false, "log every GC cycle")
		stressGC  = pflag.Bool("stress-gc", false, "collect on every allocation (shakes out GC bugs)")
		outFlag   = pflag.StringP("output", "o", "", "output file for the compile command")
	)
	pflag.Parse()
	args := pflag.Args()

	if len(args) == 0 {
		runREPL(*traceExec, *traceGC, *stressGC)
		return
	}

	switch args[0] {
	case "version":
		fmt.Printf("loxvm version %s\n", version)
	case "help":
		printUsage()
	case "repl":
		runREPL(*traceExec, *traceGC, *stressGC)
	case "run":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			printUsage()
			os.Exit(1)
		}
		runFile(args[1], *traceExec, *traceGC, *stressGC)
	case "compile":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			fmt.Fprintln(os.Stderr, "Usage: loxvm compile <input.lox> [-o output.loxc]")
			os.Exit(1)
		}
		compileFile(args[1], *outFlag)
	case "disassemble", "disasm":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			fmt.Fprintln(os.Stderr, "Usage: loxvm disassemble <file.loxc>")
			os.Exit(1)
		}
		disassembleFile(args[1])
	default:
		runFile(args[0], *traceExec, *traceGC, *stressGC)
	}
}

func printUsage() {
	fmt.Println("loxvm - a bytecode interpreter for a small dynamic scripting language")
	fmt.Println("\nUsage:")
	fmt.Println("  loxvm                        Start interactive REPL")
	fmt.Println("  loxvm [file]                 Run a .lox or .loxc file")
	fmt.Println("  loxvm run [file]             Run a .lox or .loxc file")
	fmt.Println("  loxvm compile <in> [-o out]  Compile .lox source to .loxc bytecode")
	fmt.Println("  loxvm disassemble <file>     Disassemble a .loxc bytecode file")
	fmt.Println("  loxvm repl                   Start interactive REPL")
	fmt.Println("  loxvm version                Show version")
	fmt.Println("  loxvm help                   Show this help")
	fmt.Println("\nFlags:")
	pflag.PrintDefaults()
	fmt.Println("\nFile Extensions:")
	fmt.Println("  .lox    Source code files (text)")
	fmt.Println("  .loxc   Compiled bytecode files (binary, gob-encoded)")
}

func newVM(traceExec, traceGC, stressGC bool) *vm.VM {
	v := vm.New(stressGC, logging.New(traceGC))
	v.TraceExec = traceExec
	natives.Register(v.DefineNative)
	return v
}

func runFile(filename string, traceExec, traceGC, stressGC bool) {
	v := newVM(traceExec, traceGC, stressGC)

	if isBytecodeFile(filename) {
		runBytecodeFile(v, filename)
		return
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(74)
	}

	switch v.Interpret(string(data)) {
	case vm.InterpretCompileError:
		for _, e := range v.CompileErrors() {
			fmt.Fprintln(os.Stderr, e)
		}
		os.Exit(65)
	case vm.InterpretRuntimeError:
		os.Exit(70)
	}
}

func runBytecodeFile(v *vm.VM, filename string) {
	f, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(74)
	}
	defer f.Close()

	fn, err := bytecodefile.Decode(f, v.GC)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading bytecode: %v\n", err)
		os.Exit(74)
	}

	if v.Run(fn) == vm.InterpretRuntimeError {
		os.Exit(70)
	}
}

func isBytecodeFile(filename string) bool {
	return len(filename) > 5 && filename[len(filename)-5:] == ".loxc"
}

func compileFile(inputFile, outputFile string) {
	if outputFile == "" {
		if len(inputFile) > 4 && inputFile[len(inputFile)-4:] == ".lox" {
			outputFile = inputFile[:len(inputFile)-4] + ".loxc"
		} else {
			outputFile = inputFile + ".loxc"
		}
	}

	data, err := os.ReadFile(inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(74)
	}

	v := newVM(false, false, false)
	fn, ok := v.CompileOnly(string(data))
	if !ok {
		for _, e := range v.CompileErrors() {
			fmt.Fprintln(os.Stderr, e)
		}
		os.Exit(65)
	}

	out, err := os.Create(outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
		os.Exit(74)
	}
	defer out.Close()

	if err := bytecodefile.Encode(fn, out); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing bytecode: %v\n", err)
		os.Exit(74)
	}

	fmt.Printf("Compiled %s -> %s\n", inputFile, outputFile)
}

func disassembleFile(filename string) {
	f, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(74)
	}
	defer f.Close()

	v := newVM(false, false, false)
	fn, err := bytecodefile.Decode(f, v.GC)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading bytecode: %v\n", err)
		os.Exit(74)
	}

	color.New(color.FgCyan).Printf("=== %s ===\n", filename)
	vm.DisassembleChunk(os.Stdout, fn.Chunk, "<script>")
}

func runREPL(traceExec, traceGC, stressGC bool) {
	fmt.Printf("loxvm REPL v%s\n", version)
	fmt.Println("Type 'exit' or Ctrl-D to quit.")
	fmt.Println()

	v := newVM(traceExec, traceGC, stressGC)
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			break
		}
		line := scanner.Text()
		if line == "exit" || line == "quit" {
			break
		}
		if line == "" {
			continue
		}
		v.Interpret(line)
	}
}
