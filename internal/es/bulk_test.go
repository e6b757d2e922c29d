package es

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBulkAccepted(t *testing.T) {
	var gotPath, gotEncoding, gotType string
	var gotBody []byte
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotEncoding = r.Header.Get("Content-Encoding")
		gotType = r.Header.Get("Content-Type")
		gr, err := gzip.NewReader(r.Body)
		if err != nil {
			t.Errorf("body not gzipped: %v", err)
		} else {
			gotBody, _ = io.ReadAll(gr)
		}
		w.Write([]byte(`{"errors": false, "items": []}`))
	}))

	body := gzipBytes(t, []byte(`{"index":{}}`+"\n"+`{"message":"x"}`+"\n"))
	outcome, err := client.Bulk(context.Background(), "bench-rollover-000001", body)
	if err != nil {
		t.Fatalf("Bulk: %v", err)
	}
	if outcome != BulkAccepted {
		t.Fatalf("outcome = %s, want accepted", outcome)
	}
	if gotPath != "/bench-rollover-000001/_bulk" {
		t.Errorf("path = %s", gotPath)
	}
	if gotEncoding != "gzip" || gotType != "application/x-ndjson" {
		t.Errorf("headers = %q / %q", gotEncoding, gotType)
	}
	if len(gotBody) == 0 {
		t.Error("server saw empty decompressed body")
	}
}

func TestBulkAcceptedWithItemErrors(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors": true, "items": [
			{"index": {"status": 201}},
			{"index": {"status": 400, "error": {"type": "mapper_parsing_exception", "reason": "bad field"}}}
		]}`))
	}))

	outcome, err := client.Bulk(context.Background(), "idx", gzipBytes(t, []byte("x\n")))
	if err != nil {
		t.Fatalf("Bulk: %v", err)
	}
	// Item-level failures do not fail or shrink the batch.
	if outcome != BulkAccepted {
		t.Fatalf("outcome = %s, want accepted", outcome)
	}
}

func TestBulkTooLargeShrinksWithoutRetry(t *testing.T) {
	var calls int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))

	outcome, err := client.Bulk(context.Background(), "idx", gzipBytes(t, []byte("x\n")))
	if err != nil {
		t.Fatalf("Bulk: %v", err)
	}
	if outcome != BulkShrink {
		t.Fatalf("outcome = %s, want shrink", outcome)
	}
	// 413 never succeeds on retry; it must go straight to the caller.
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("server saw %d requests, want 1", n)
	}
}

func TestBulkOverloadRetriesThenSucceeds(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"errors": false, "items": []}`))
	}))
	defer ts.Close()

	client := NewClient(Config{
		BaseURL:      ts.URL,
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})

	outcome, err := client.Bulk(context.Background(), "idx", gzipBytes(t, []byte("x\n")))
	if err != nil {
		t.Fatalf("Bulk: %v", err)
	}
	if outcome != BulkAccepted {
		t.Fatalf("outcome = %s, want accepted after retry", outcome)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("server saw %d requests, want 2", n)
	}
}

func TestBulkOverloadExhaustedShrinks(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := NewClient(Config{
		BaseURL:      ts.URL,
		RetryMax:     1,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})

	outcome, err := client.Bulk(context.Background(), "idx", gzipBytes(t, []byte("x\n")))
	if err != nil {
		t.Fatalf("Bulk: %v", err)
	}
	if outcome != BulkShrink {
		t.Fatalf("outcome = %s, want shrink after exhausted retries", outcome)
	}
}

func TestBulkBadRequestIsFatal(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "malformed action"}`))
	}))

	outcome, err := client.Bulk(context.Background(), "idx", gzipBytes(t, []byte("x\n")))
	if outcome != BulkFatal {
		t.Fatalf("outcome = %s, want fatal", outcome)
	}
	var ae *APIError
	if !errors.As(err, &ae) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if ae.StatusCode != http.StatusBadRequest || ae.Path != "/idx/_bulk" {
		t.Fatalf("APIError = %+v", ae)
	}
}

func TestBulkConnectionErrorShrinks(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // refuse all connections

	client := NewClient(Config{
		BaseURL:      ts.URL,
		RetryMax:     1,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})

	outcome, err := client.Bulk(context.Background(), "idx", gzipBytes(t, []byte("x\n")))
	if err != nil {
		t.Fatalf("Bulk: %v", err)
	}
	if outcome != BulkShrink {
		t.Fatalf("outcome = %s, want shrink on connection error", outcome)
	}
}

func TestBulkCanceledContextIsFatal(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer ts.Close()

	client := NewClient(Config{BaseURL: ts.URL, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := client.Bulk(ctx, "idx", gzipBytes(t, []byte("x\n")))
	if outcome != BulkFatal {
		t.Fatalf("outcome = %s, want fatal", outcome)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	return buf.Bytes()
}
