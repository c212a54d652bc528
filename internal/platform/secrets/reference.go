package secrets

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

type reference struct {
	Canonical string
	Secret    string
	Version   string
	Project   string
}

// parseReference accepts secret://name[?version=N&project=P]; sm:// is treated as an alias.
func parseReference(raw string) (reference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	if strings.HasPrefix(raw, "sm://") {
		raw = "secret://" + strings.TrimPrefix(raw, "sm://")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", raw)
	}
	query := u.Query()
	return reference{
		Canonical: "secret://" + name,
		Secret:    name,
		Version:   strings.TrimSpace(query.Get("version")),
		Project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

// maskReference hashes a reference so metric and log attributes never carry secret names.
func maskReference(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(sum[:8])
}
