// Command izb is the driver: a REPL plus a one-shot file runner wired to an
// optional izb.mod manifest for import search roots and chunk caching.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"izb/internal/ast"
	"izb/internal/cache"
	"izb/internal/chunk"
	"izb/internal/compiler"
	"izb/internal/lexer"
	"izb/internal/parser"
	"izb/internal/pkgmanager"
	"izb/internal/vm"
)

const version = "v0.1.0"

func main() {
	showDisassembly := flag.Bool("disassembly", false, "Show bytecode disassembly")
	showVersion := flag.Bool("version", false, "Show version information")
	showHelp := flag.Bool("help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: izb [options] [file]\n\nOptions:\n")
		flag.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(os.Stderr, "  --%s\n\t%s\n", f.Name, f.Usage)
		})
	}
	flag.Parse()

	if *showHelp {
		flag.Usage()
		return
	}
	if *showVersion {
		fmt.Printf("izb %s\n", version)
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		startREPL(*showDisassembly)
		return
	}

	filename := args[0]
	content, err := os.ReadFile(filename)
	if err != nil {
		fmt.Printf("Error reading file: %s\n", err)
		os.Exit(1)
	}

	runFile(filename, content, *showDisassembly)
}

// openProjectCache loads izb.mod (if any) starting from dir, applies its
// search roots to comp, and opens a local chunk cache file
// (.izb-cache.db) in dir itself, wherever the manifest was found. A "cache"
// directive, when present, names a subprocess command line for the remote
// tier (the izb-cached protocol is JSON-RPC over the subprocess's
// stdin/stdout, not a dialed network endpoint).
func openProjectCache(dir string, comp *compiler.Compiler) (*pkgmanager.ModuleConfig, *cache.Cache, error) {
	config, err := pkgmanager.Find(dir)
	if err != nil {
		return nil, nil, err
	}
	comp.SetSearchRoots(config.SearchRoots)

	local, err := cache.OpenLocal(filepath.Join(dir, ".izb-cache.db"))
	if err != nil {
		return config, nil, err
	}

	var remote *cache.Remote
	if config.CacheEndpoint != "" {
		fields := strings.Fields(config.CacheEndpoint)
		if len(fields) > 0 {
			remote, err = cache.StartRemote(fields[0], fields[1:]...)
			if err != nil {
				fmt.Printf("warning: could not start cache plugin %q: %s\n", config.CacheEndpoint, err)
				remote = nil
			}
		}
	}

	return config, cache.New(local, remote), nil
}

func runFile(filename string, content []byte, showDisasm bool) {
	l := lexer.New(string(content))
	p := parser.New(l)
	program := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		for _, msg := range errs {
			fmt.Println(msg)
		}
		os.Exit(1)
	}

	comp := compiler.New(filename)
	dir := filepath.Dir(filename)
	_, chunkCache, err := openProjectCache(dir, comp)
	if err != nil {
		fmt.Printf("warning: could not open chunk cache: %s\n", err)
	}

	var c *chunk.Chunk
	if chunkCache != nil {
		if cached, ok, _ := chunkCache.Get(filename, content); ok {
			c = cached
		}
	}

	if c == nil {
		c, err = compiler.CompileWith(comp, program)
		if err != nil {
			fmt.Printf("Compiler error: %s\n", err)
			os.Exit(1)
		}
		if chunkCache != nil {
			if err := chunkCache.Put(filename, content, c); err != nil {
				fmt.Printf("warning: could not write chunk cache: %s\n", err)
			}
		}
	}

	if showDisasm {
		fmt.Println("Disassembly:")
		fmt.Println(chunk.DisassembleAll(c, filename))
		fmt.Println("\nExecution:")
	}

	machine := vm.New(filename)
	if err := machine.Interpret(c); err != nil {
		fmt.Printf("Runtime error: %s\n", err)
		os.Exit(1)
	}
}

func startREPL(showDisasm bool) {
	fmt.Printf("izb %s\n", version)
	fmt.Println("Type 'exit' to quit.")

	colorPrompt := isatty.IsTerminal(os.Stdin.Fd())
	prompt := func(s string) {
		if colorPrompt {
			fmt.Print("\x1b[36m" + s + "\x1b[0m")
		} else {
			fmt.Print(s)
		}
	}

	machine := vm.New("REPL")
	var searchRoots []string
	if config, err := pkgmanager.Find("."); err == nil {
		searchRoots = config.SearchRoots
	}

	scanner := bufio.NewScanner(os.Stdin)
	var inputBuffer string

	for {
		if inputBuffer == "" {
			prompt(">>> ")
		} else {
			prompt("... ")
		}

		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		if strings.TrimSpace(line) == "exit" {
			break
		}
		if strings.TrimSpace(line) == "" && inputBuffer == "" {
			continue
		}

		if inputBuffer == "" {
			inputBuffer = line
		} else {
			inputBuffer += "\n" + line
		}

		l := lexer.New(inputBuffer)
		p := parser.New(l)
		program := p.ParseProgram()

		if errs := p.Errors(); len(errs) > 0 {
			incomplete := false
			for _, msg := range errs {
				if strings.Contains(msg, "found end of file") || strings.Contains(msg, "found EOF") {
					incomplete = true
					break
				}
			}
			if incomplete {
				continue
			}
			for _, msg := range errs {
				fmt.Println(msg)
			}
			inputBuffer = ""
			continue
		}

		// Bare expression statements print their value, the way a
		// calculator REPL does.
		if len(program.Statements) == 1 {
			if exprStmt, ok := program.Statements[0].(*ast.ExpressionStmt); ok {
				call := &ast.CallExpr{
					Token:     exprStmt.Token,
					Callee:    &ast.Identifier{Token: exprStmt.Token, Name: "print"},
					Arguments: []ast.Expression{exprStmt.Expression},
				}
				program.Statements[0] = &ast.ExpressionStmt{Token: exprStmt.Token, Expression: call}
			}
		}

		// Each line gets its own compiler so its chunk holds only this
		// line's code; globals persist across lines in the shared VM.
		comp := compiler.New("REPL")
		comp.SetSearchRoots(searchRoots)
		c, err := compiler.CompileWith(comp, program)
		if err != nil {
			fmt.Printf("Compiler error: %s\n", err)
			inputBuffer = ""
			continue
		}

		if showDisasm {
			fmt.Println(chunk.DisassembleAll(c, "REPL"))
			fmt.Printf("(%s of bytecode)\n", humanize.Bytes(uint64(len(c.Code))))
		}

		if err := machine.Interpret(c); err != nil {
			fmt.Printf("Runtime error: %s\n", err)
		}

		inputBuffer = ""
	}
}
