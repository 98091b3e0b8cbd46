package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/c360/stormbridge/errors"
)

// Limits on operator-supplied input.
const (
	maxConfigSize = 10 << 20
	maxJSONDepth  = 100
	maxEnvVarLen  = 10000
	maxPathLen    = 4096
)

var configExtensions = map[string]bool{".json": true, ".yaml": true, ".yml": true}

func invalidInput(format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
		"Loader", "read", "input check")
}

// checkConfigPath accepts JSON or YAML paths without parent-directory
// segments.
func checkConfigPath(path string) error {
	switch {
	case path == "":
		return invalidInput("empty config path")
	case len(path) > maxPathLen:
		return invalidInput("path too long: %d > %d", len(path), maxPathLen)
	case strings.ContainsRune(path, 0):
		return invalidInput("null byte in path")
	}
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if segment == ".." {
			return invalidInput("path traversal not allowed: %s", path)
		}
	}
	if !configExtensions[strings.ToLower(filepath.Ext(path))] {
		return invalidInput("only JSON or YAML config files allowed: %s", path)
	}
	return nil
}

// readConfigFile reads a regular file of at most maxConfigSize bytes.
func readConfigFile(path string) ([]byte, error) {
	if err := checkConfigPath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	// Stat the open descriptor so the checks apply to what is read.
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, invalidInput("not a regular file: %s", path)
	}
	if info.Size() > maxConfigSize {
		return nil, invalidInput("config file too large: %d bytes > %d", info.Size(), maxConfigSize)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxConfigSize+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > maxConfigSize {
		return nil, invalidInput("config file grew past %d bytes", maxConfigSize)
	}
	return data, nil
}

// checkEnvVar bounds an override value. Empty values are ignored by the
// caller.
func checkEnvVar(key, value string) error {
	if len(value) > maxEnvVarLen {
		return invalidInput("environment variable %s too long: %d > %d", key, len(value), maxEnvVarLen)
	}
	if strings.ContainsRune(value, 0) {
		return invalidInput("null byte in environment variable %s", key)
	}
	return nil
}

// checkJSONDepth walks the token stream and rejects documents nested deeper
// than maxJSONDepth. Syntax errors surface here too.
func checkJSONDepth(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return invalidInput("malformed JSON: %v", err)
		}
		delim, ok := tok.(json.Delim)
		if !ok {
			continue
		}
		switch delim {
		case '{', '[':
			depth++
			if depth > maxJSONDepth {
				return invalidInput("JSON nesting too deep: > %d", maxJSONDepth)
			}
		case '}', ']':
			depth--
		}
	}
}
