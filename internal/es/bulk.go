package es

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
)

// BulkOutcome classifies the result of one bulk send.
type BulkOutcome int

const (
	// BulkAccepted means the batch was durably queued by the backend.
	BulkAccepted BulkOutcome = iota
	// BulkShrink means the batch was too ambitious for the backend right
	// now; the caller should halve the batch and retry the same send.
	BulkShrink
	// BulkFatal means something is structurally wrong; the error is
	// returned alongside and the run should stop.
	BulkFatal
)

func (o BulkOutcome) String() string {
	switch o {
	case BulkAccepted:
		return "accepted"
	case BulkShrink:
		return "shrink"
	default:
		return "fatal"
	}
}

// shrinkStatuses signal backpressure or an oversized payload after the
// transport-level retries have been exhausted.
var shrinkStatuses = map[int]struct{}{
	http.StatusRequestEntityTooLarge: {},
	http.StatusTooManyRequests:       {},
	http.StatusBadGateway:            {},
	http.StatusServiceUnavailable:    {},
	http.StatusGatewayTimeout:        {},
}

type bulkResponse struct {
	Errors bool                  `json:"errors"`
	Items  []map[string]bulkItem `json:"items"`
}

type bulkItem struct {
	Status int `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// Bulk sends one gzip-compressed NDJSON batch to the target's bulk
// endpoint and classifies the result. Item-level failures inside an
// accepted batch are logged but never retried per item; this tool measures
// rollover behavior, not delivery guarantees.
func (c *Client) Bulk(ctx context.Context, target string, body []byte) (BulkOutcome, error) {
	path := "/" + target + "/_bulk"
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return BulkFatal, err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set("Content-Encoding", "gzip")
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return BulkFatal, ctx.Err()
		}
		c.log.Warn().Err(err).Msg("bulk send failed, signaling shrink")
		return BulkShrink, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return BulkFatal, ctx.Err()
		}
		c.log.Warn().Err(err).Msg("bulk response read failed, signaling shrink")
		return BulkShrink, nil
	}

	if resp.StatusCode >= 300 {
		if _, ok := shrinkStatuses[resp.StatusCode]; ok {
			c.log.Warn().Int("status", resp.StatusCode).Msg("bulk backpressure, signaling shrink")
			return BulkShrink, nil
		}
		return BulkFatal, &APIError{
			Method:     http.MethodPost,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       truncateBody(raw),
		}
	}

	var br bulkResponse
	if err := json.Unmarshal(raw, &br); err != nil {
		c.log.Warn().Err(err).Msg("bulk response not decodable, treating as accepted")
		return BulkAccepted, nil
	}
	if br.Errors {
		c.log.Warn().Str("first_error", firstItemError(br)).Msg("bulk item errors present, continuing")
	}
	return BulkAccepted, nil
}

func firstItemError(br bulkResponse) string {
	for _, item := range br.Items {
		for _, op := range item {
			if op.Error != nil {
				return op.Error.Type + ": " + op.Error.Reason
			}
		}
	}
	return ""
}
