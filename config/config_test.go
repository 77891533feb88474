package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseArgs(t *testing.T) {
	c := New()
	if err := c.ParseArgs([]string{"15001", "8"}); err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if c.Port != 15001 || c.Workers != 8 {
		t.Errorf("got port=%d workers=%d", c.Port, c.Workers)
	}
}

func TestParseArgsRejectsBadInput(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"8080"},
		{"8080", "4", "extra"},
		{"notaport", "4"},
		{"8080", "0"},
		{"70000", "4"},
	} {
		if err := New().ParseArgs(args); err == nil {
			t.Errorf("ParseArgs(%v) accepted bad input", args)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	yaml := "port: 9000\nworkers: 2\ncache_size: 1048576\nlog_file: out.log\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	c := New()
	if err := c.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if c.Port != 9000 || c.Workers != 2 || c.CacheSize != 1<<20 || c.LogFile != "out.log" {
		t.Errorf("loaded %+v", c)
	}
	// Fields absent from the file keep their defaults.
	if c.DocRoot != "." {
		t.Errorf("DocRoot = %q, want default", c.DocRoot)
	}
}

func TestLoadFileMissingIsFine(t *testing.T) {
	c := New()
	if err := c.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Errorf("missing config file reported error: %v", err)
	}
}
