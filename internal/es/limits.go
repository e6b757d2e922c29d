package es

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// DefaultMaxContentLength is the conservative fallback when the cluster
// does not report http.max_content_length. Callers apply it; the lookup
// itself never guesses.
const DefaultMaxContentLength int64 = 100 << 20

type clusterSettings struct {
	Persistent httpSection `json:"persistent"`
	Transient  httpSection `json:"transient"`
	Defaults   httpSection `json:"defaults"`
}

type httpSection struct {
	HTTP struct {
		MaxContentLength string `json:"max_content_length"`
	} `json:"http"`
}

// MaxContentLength discovers the cluster's accepted request-size ceiling.
// found is false when the cluster reports no value at any level; an
// unparseable value is an error, never a silent default.
func (c *Client) MaxContentLength(ctx context.Context) (limit int64, found bool, err error) {
	var cs clusterSettings
	if err := c.Do(ctx, http.MethodGet, "/_cluster/settings?include_defaults=true", nil, &cs); err != nil {
		return 0, false, err
	}

	for _, v := range []string{
		cs.Persistent.HTTP.MaxContentLength,
		cs.Transient.HTTP.MaxContentLength,
		cs.Defaults.HTTP.MaxContentLength,
	} {
		if v == "" {
			continue
		}
		n, err := ParseByteSize(v)
		if err != nil {
			return 0, false, fmt.Errorf("http.max_content_length: %w", err)
		}
		return n, true, nil
	}
	return 0, false, nil
}

// ParseByteSize parses a size-with-unit string ("100mb", "1024b", "2gb")
// or a bare byte count ("1048576") into bytes. Unrecognized suffixes are
// an error.
func ParseByteSize(s string) (int64, error) {
	t := strings.ToLower(strings.TrimSpace(s))

	var mult int64 = 1
	switch {
	case strings.HasSuffix(t, "kb"):
		mult, t = 1<<10, strings.TrimSuffix(t, "kb")
	case strings.HasSuffix(t, "mb"):
		mult, t = 1<<20, strings.TrimSuffix(t, "mb")
	case strings.HasSuffix(t, "gb"):
		mult, t = 1<<30, strings.TrimSuffix(t, "gb")
	case strings.HasSuffix(t, "tb"):
		mult, t = 1<<40, strings.TrimSuffix(t, "tb")
	case strings.HasSuffix(t, "b"):
		t = strings.TrimSuffix(t, "b")
	}

	n, err := strconv.ParseInt(t, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("unrecognized byte size %q", s)
	}
	return n * mult, nil
}
