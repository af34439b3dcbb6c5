// ABOUTME: Tests for the .env loader: parsing rules and the no-clobber guarantee.
package main

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseDotEnv(t *testing.T) {
	src := strings.Join([]string{
		"# comment",
		"",
		"KES_PORT=8080",
		`export KES_LOG_LEVEL="debug"`,
		"KES_POSTS_DIR='my posts'",
		"KES_ASSETS_DIR = a=b",
		"not a pair",
		"=novalue",
		`KES_QUOTE="`,
	}, "\n")

	pairs, err := parseDotEnv(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][2]string{
		{"KES_PORT", "8080"},
		{"KES_LOG_LEVEL", "debug"},
		{"KES_POSTS_DIR", "my posts"},
		{"KES_ASSETS_DIR", "a=b"},
		{"KES_QUOTE", `"`},
	}
	if len(pairs) != len(want) {
		t.Fatalf("expected %d pairs, got %v", len(want), pairs)
	}
	for i := range want {
		if pairs[i] != want[i] {
			t.Errorf("pair %d: expected %v, got %v", i, want[i], pairs[i])
		}
	}
}

func TestUnquoteMismatched(t *testing.T) {
	for in, want := range map[string]string{
		`"abc'`: `"abc'`,
		`'x'`:   "x",
		`""`:    "",
		`a`:     "a",
	} {
		if got := unquote(in); got != want {
			t.Errorf("unquote(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadDotEnvSetsMissingOnly(t *testing.T) {
	path := writeTempEnv(t, "KES_TEST_DOTENV_NEW=fromfile\nKES_TEST_DOTENV_OLD=fromfile\n")
	t.Setenv("KES_TEST_DOTENV_NEW", "")
	os.Unsetenv("KES_TEST_DOTENV_NEW")
	t.Setenv("KES_TEST_DOTENV_OLD", "fromshell")

	set, err := loadDotEnv(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(set) != 1 || set[0] != "KES_TEST_DOTENV_NEW" {
		t.Errorf("expected only the new key to be set, got %v", set)
	}
	if got := os.Getenv("KES_TEST_DOTENV_NEW"); got != "fromfile" {
		t.Errorf("expected fromfile, got %q", got)
	}
	if got := os.Getenv("KES_TEST_DOTENV_OLD"); got != "fromshell" {
		t.Errorf("expected the shell value to win, got %q", got)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	set, err := loadDotEnv(filepath.Join(t.TempDir(), "nope.env"))
	if err != nil {
		t.Fatalf("expected a missing file to be ignored, got %v", err)
	}
	if set != nil {
		t.Errorf("expected nothing set, got %v", set)
	}
}

func TestLoadDotEnvOverlongLineSetsNothing(t *testing.T) {
	long := "KES_TEST_DOTENV_LONG=" + strings.Repeat("x", bufio.MaxScanTokenSize) + "\n"
	path := writeTempEnv(t, "KES_TEST_DOTENV_BEFORE=1\n"+long+"KES_TEST_DOTENV_AFTER=1\n")
	for _, k := range []string{"KES_TEST_DOTENV_BEFORE", "KES_TEST_DOTENV_LONG", "KES_TEST_DOTENV_AFTER"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	set, err := loadDotEnv(path)
	if !errors.Is(err, bufio.ErrTooLong) {
		t.Fatalf("expected bufio.ErrTooLong, got %v", err)
	}
	if len(set) != 0 {
		t.Errorf("expected nothing set, got %v", set)
	}
	if _, ok := os.LookupEnv("KES_TEST_DOTENV_BEFORE"); ok {
		t.Error("expected lines before the bad one to be left unapplied")
	}
}

func TestLoadDotEnvUnreadablePath(t *testing.T) {
	// A directory opens but cannot be read as a file.
	if _, err := loadDotEnv(t.TempDir()); err == nil {
		t.Fatal("expected an error reading a directory")
	}
}
