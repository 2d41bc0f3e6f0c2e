package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// MinServerVersion is the oldest server API this client speaks.
const MinServerVersion = "v1.2.0"

// ErrIncompatibleServer is returned when the server API version is outside the
// supported range.
var ErrIncompatibleServer = errors.New("incompatible server version")

// Version returns the server's API version, normalized to a "v" prefix.
func (c *Client) Version(ctx context.Context) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.getJSON(ctx, "/api/version", nil, &out); err != nil {
		return "", err
	}
	v := strings.TrimSpace(out.Version)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v, nil
}

// CheckVersion reports whether the server is reachable and speaks a
// compatible API: same major version as MinServerVersion and not older.
func (c *Client) CheckVersion(ctx context.Context) (string, error) {
	v, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return v, Compatible(v)
}

// Compatible checks a server version against MinServerVersion.
func Compatible(v string) error {
	if !semver.IsValid(v) {
		return fmt.Errorf("%w: %q is not a semantic version", ErrIncompatibleServer, v)
	}
	if semver.Major(v) != semver.Major(MinServerVersion) {
		return fmt.Errorf("%w: server %s, client supports %s.x", ErrIncompatibleServer, v, semver.Major(MinServerVersion))
	}
	if semver.Compare(v, MinServerVersion) < 0 {
		return fmt.Errorf("%w: server %s is older than %s", ErrIncompatibleServer, v, MinServerVersion)
	}
	return nil
}
