package pkgmanager

import (
	"os"
	"strings"
	"testing"
)

func TestModFile(t *testing.T) {
	content := `
module izb-test

izb v1.2.0

search ./vendor/izb_libs
cache http://localhost:9090

require github.com/user/repo v1.0.0
`
	tmpfile, err := os.CreateTemp("", "izb.mod")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	config, err := ParseModFile(tmpfile.Name())
	if err != nil {
		t.Fatalf("ParseModFile failed: %v", err)
	}

	if config.Module != "izb-test" {
		t.Errorf("expected module izb-test, got %s", config.Module)
	}
	if config.IzbVersion != "v1.2.0" {
		t.Errorf("expected izb version v1.2.0, got %s", config.IzbVersion)
	}
	if len(config.SearchRoots) != 1 || config.SearchRoots[0] != "./vendor/izb_libs" {
		t.Errorf("expected one search root, got %v", config.SearchRoots)
	}
	if config.CacheEndpoint != "http://localhost:9090" {
		t.Errorf("expected cache endpoint, got %s", config.CacheEndpoint)
	}
	if config.Require["github.com/user/repo"] != "v1.0.0" {
		t.Errorf("expected require github.com/user/repo v1.0.0, got %s", config.Require["github.com/user/repo"])
	}

	config.IzbVersion = "v1.3.0"
	if err := config.Save(tmpfile.Name()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(tmpfile.Name())
	if err != nil {
		t.Fatal(err)
	}

	savedContent := string(data)
	if !strings.Contains(savedContent, "izb v1.3.0") {
		t.Errorf("expected saved content to contain 'izb v1.3.0', got:\n%s", savedContent)
	}
}
