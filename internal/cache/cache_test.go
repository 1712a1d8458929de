package cache

import (
	"path/filepath"
	"testing"

	"izb/internal/chunk"
	"izb/internal/compiler"
	"izb/internal/lexer"
	"izb/internal/parser"
)

func compileChunk(t *testing.T, src string) *chunk.Chunk {
	t.Helper()
	l := lexer.New(src)
	p := parser.New(l)
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	c, err := compiler.Compile(prog, "test")
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return c
}

func TestDigestStableForSameSource(t *testing.T) {
	a := Digest([]byte("var x = 1;"))
	b := Digest([]byte("var x = 1;"))
	if a != b {
		t.Fatal("expected Digest to be deterministic for identical input")
	}
	if a == Digest([]byte("var x = 2;")) {
		t.Fatal("expected Digest to differ for different input")
	}
}

func TestLocalRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chunks.db")
	local, err := OpenLocal(dbPath)
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	defer local.Close()

	c := compileChunk(t, "var x = 1 + 2;")
	if err := local.Put("main.izb", "deadbeef", c); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := local.Get("main.izb", "deadbeef")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit after Put")
	}
	if len(got.Code) != len(c.Code) {
		t.Fatalf("round-tripped chunk code length = %d, want %d", len(got.Code), len(c.Code))
	}
}

func TestLocalMiss(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chunks.db")
	local, err := OpenLocal(dbPath)
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	defer local.Close()

	_, ok, err := local.Get("nope.izb", "0000")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected a cache miss for a key never Put")
	}
}

func TestCacheGetWithoutRemoteIsLocalOnly(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chunks.db")
	local, err := OpenLocal(dbPath)
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	defer local.Close()

	c := compileChunk(t, "var x = 1;")
	cc := New(local, nil)
	source := []byte("var x = 1;")

	if err := cc.Put("main.izb", source, c); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := cc.Get("main.izb", source)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected a hit from the local tier")
	}
	if len(got.Code) != len(c.Code) {
		t.Fatalf("code length = %d, want %d", len(got.Code), len(c.Code))
	}

	_, ok, err = cc.Get("main.izb", []byte("var x = 2;"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected a miss for a different source digest")
	}
}
