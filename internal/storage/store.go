// internal/storage/store.go
package storage

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseURI splits an object URI of the form scheme://bucket/key.
func ParseURI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("parse object uri %q: %w", uri, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("object uri %q: missing bucket", uri)
	}

	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("object uri %q: missing key", uri)
	}

	return u.Host, key, nil
}
