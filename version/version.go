// Package version parses the server version string and decides which
// discovery call a server understands.
package version

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const textPrefix = "etcd v"

var (
	minimum      = semver.MustParse("0.2.0")
	membersSince = semver.MustParse("2.0.0")
)

// Parse reads either the legacy "etcd v0.4.6" text or the JSON document
// {"etcdserver":"2.3.7","etcdcluster":"2.3.0"}.
func Parse(text string) (*semver.Version, error) {
	text = strings.TrimSpace(text)

	var raw string
	switch {
	case strings.HasPrefix(text, textPrefix):
		raw = text[len(textPrefix):]
	case strings.HasPrefix(text, "{"):
		doc := struct {
			Server string `json:"etcdserver"`
		}{}
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return nil, fmt.Errorf("invalid version response %q: %v", text, err)
		}
		if doc.Server == "" {
			return nil, fmt.Errorf("invalid version response: %s", text)
		}
		raw = doc.Server
	default:
		return nil, fmt.Errorf("could not parse server version from: %s", text)
	}

	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("could not parse server version %q: %v", raw, err)
	}
	return v, nil
}

// Check rejects servers older than 0.2.0.
func Check(v *semver.Version) error {
	if v.LessThan(minimum) {
		return fmt.Errorf("etcd %s is not supported, %s or newer is required", v, minimum)
	}
	return nil
}

// UsesMachines is true for servers that only publish the legacy
// /_etcd/machines list instead of /v2/members.
func UsesMachines(v *semver.Version) bool {
	return v.LessThan(membersSince)
}
