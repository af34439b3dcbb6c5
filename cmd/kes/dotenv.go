// ABOUTME: Reads a .env file next to kes.toml so KES_* overrides can live outside the shell profile.
// ABOUTME: Values already present in the process environment always win over the file.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// parseDotEnv returns the KEY=VALUE pairs in r, in file order.
// Blank lines, # comments and lines without '=' are skipped; an optional
// "export " prefix and one layer of matching quotes are removed.
func parseDotEnv(r io.Reader) ([][2]string, error) {
	var pairs [][2]string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		pairs = append(pairs, [2]string{key, unquote(strings.TrimSpace(value))})
	}
	return pairs, scanner.Err()
}

func unquote(v string) string {
	if len(v) < 2 {
		return v
	}
	if (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// loadDotEnv applies path to the environment without overwriting existing
// variables and returns the keys it set. A missing file sets nothing. A file
// that cannot be read to the end sets nothing and returns the error.
func loadDotEnv(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	pairs, err := parseDotEnv(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var set []string
	for _, kv := range pairs {
		if _, exists := os.LookupEnv(kv[0]); exists {
			continue
		}
		if err := os.Setenv(kv[0], kv[1]); err != nil {
			return set, fmt.Errorf("setting %s from %s: %w", kv[0], path, err)
		}
		set = append(set, kv[0])
	}
	return set, nil
}
