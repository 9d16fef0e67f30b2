package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/v4link/internal/config"
	"github.com/danmuck/v4link/internal/testutil/testlog"
)

func TestTemplatesValidate(t *testing.T) {
	testlog.Start(t)
	for _, kind := range []string{"v4linkd", "bundle"} {
		path := filepath.Join(t.TempDir(), kind+".toml")
		if err := config.WriteTemplate(path, kind, false); err != nil {
			t.Fatalf("write %s: %v", kind, err)
		}
		if err := validateFile(kind, path); err != nil {
			t.Fatalf("validate %s: %v", kind, err)
		}
	}
}

func TestValidateRejectsBrokenBundle(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "bundle.toml")
	if err := os.WriteFile(path, []byte("main = \"50 @MISSING\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := validateFile("bundle", path); err == nil {
		t.Fatalf("expected unknown word reference to fail")
	}
	if _, err := defaultPath("mirage"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
