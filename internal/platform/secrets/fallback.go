package secrets

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// fallbackFile lazily loads KEY=VALUE lines from a local file. Keys are secret references,
// optionally carrying ?version=N.
type fallbackFile struct {
	path string

	once   sync.Once
	values map[string]string
	err    error
}

func (f *fallbackFile) lookup(ref reference, version string) (string, bool, error) {
	f.once.Do(f.load)
	if f.err != nil {
		return "", false, f.err
	}
	if v, ok := f.values[ref.Canonical+"#"+version]; ok {
		return v, true, nil
	}
	v, ok := f.values[ref.Canonical]
	return v, ok, nil
}

func (f *fallbackFile) load() {
	f.values = map[string]string{}
	if f.path == "" {
		return
	}
	file, err := os.Open(f.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.err = fmt.Errorf("secrets: open fallback %s: %w", f.path, err)
		}
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		ref, err := parseReference(key)
		if err != nil {
			continue
		}
		value = strings.TrimSpace(value)
		f.values[ref.Canonical] = value
		if ref.Version != "" {
			f.values[ref.Canonical+"#"+ref.Version] = value
		}
	}
	if err := scanner.Err(); err != nil {
		f.err = fmt.Errorf("secrets: read fallback %s: %w", f.path, err)
	}
}
