package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/Shield/internal/clock"
	"github.com/SmitUplenchwar2687/Shield/internal/limiter"
	"github.com/SmitUplenchwar2687/Shield/internal/policy"
	"github.com/SmitUplenchwar2687/Shield/internal/recorder"
	"github.com/SmitUplenchwar2687/Shield/internal/storage"
)

var (
	epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx   = context.Background()

	defaultPolicy = policy.Policy{
		Algorithm: policy.AlgorithmTokenBucket,
		Capacity:  3,
		PeriodMS:  60000,
	}
)

type testServer struct {
	*httptest.Server
	vc    *clock.VirtualClock
	store *storage.MemoryStorage
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	vc := clock.NewVirtualClock(epoch)
	store := storage.NewMemoryStorage(vc)
	exec, err := limiter.NewExecutor(store, limiter.WithClock(vc))
	if err != nil {
		t.Fatal(err)
	}
	if opts.Policy == (policy.Policy{}) {
		opts.Policy = defaultPolicy
	}
	opts.Clock = vc
	srv := New("", exec, opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, vc: vc, store: store}
}

func (ts *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) post(t *testing.T, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/absorb", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeDecision(t *testing.T, resp *http.Response) limiter.Decision {
	t.Helper()
	var d limiter.Decision
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		t.Fatalf("decoding decision: %v", err)
	}
	return d
}

func TestServer_Root(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp := ts.get(t, "/")

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["service"] != "shield" {
		t.Errorf("service = %q, want %q", body["service"], "shield")
	}
	if body["algorithm"] != "token_bucket" {
		t.Errorf("algorithm = %q, want %q", body["algorithm"], "token_bucket")
	}
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp := ts.get(t, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestServer_NotFound(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp := ts.get(t, "/nonexistent")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_AbsorbKey_Allowed(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp := ts.get(t, "/api/absorb/user1")

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	d := decodeDecision(t, resp)
	if !d.Allowed {
		t.Error("first request should be allowed")
	}
	if d.Remaining != 2 {
		t.Errorf("remaining = %d, want 2", d.Remaining)
	}
	if d.StorageKey != "tp:tb:user1" {
		t.Errorf("storage key = %q, want %q", d.StorageKey, "tp:tb:user1")
	}

	if got := resp.Header.Get("X-RateLimit-Limit"); got != "3" {
		t.Errorf("X-RateLimit-Limit = %q, want %q", got, "3")
	}
	if got := resp.Header.Get("X-RateLimit-Remaining"); got != "2" {
		t.Errorf("X-RateLimit-Remaining = %q, want %q", got, "2")
	}
	if resp.Header.Get(requestIDHeader) == "" {
		t.Error("X-Request-ID header should be set")
	}
}

func TestServer_AbsorbKey_Denied(t *testing.T) {
	ts := newTestServer(t, Options{})

	for i := 0; i < 3; i++ {
		if resp := ts.get(t, "/api/absorb/user1"); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, resp.StatusCode)
		}
	}

	resp := ts.get(t, "/api/absorb/user1")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
	d := decodeDecision(t, resp)
	if d.Allowed {
		t.Error("4th request should be denied")
	}
	if d.Result != limiter.Denied {
		t.Errorf("result = %d, want %d", d.Result, limiter.Denied)
	}
	if got := resp.Header.Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want %q", got, "60")
	}
}

func TestServer_AbsorbKey_RefillsAfterPeriod(t *testing.T) {
	ts := newTestServer(t, Options{})
	for i := 0; i < 4; i++ {
		ts.get(t, "/api/absorb/user1")
	}

	ts.vc.Advance(time.Minute)

	resp := ts.get(t, "/api/absorb/user1")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status after a full period = %d, want 200", resp.StatusCode)
	}
}

func TestServer_AbsorbKey_QueryOverrides(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp := ts.get(t, "/api/absorb/user1?capacity=5&period=10&tokens=2&algorithm=fixed_window")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	d := decodeDecision(t, resp)
	if d.Algorithm != policy.AlgorithmFixedWindow {
		t.Errorf("algorithm = %s, want fixed_window", d.Algorithm)
	}
	if d.Capacity != 5 || d.PeriodMS != 10000 || d.Tokens != 2 {
		t.Errorf("policy = %d/%dms/%d, want 5/10000ms/2", d.Capacity, d.PeriodMS, d.Tokens)
	}
	if d.Remaining != 3 {
		t.Errorf("remaining = %d, want 3", d.Remaining)
	}
}

func TestServer_AbsorbKey_BadQuery(t *testing.T) {
	ts := newTestServer(t, Options{})

	for _, q := range []string{
		"capacity=0",
		"capacity=abc",
		"period=-1",
		"tokens=1.5",
		"algorithm=nope",
		"period=9223372036854775807",
	} {
		resp := ts.get(t, "/api/absorb/user1?"+q)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestServer_SeparateKeysAreSeparate(t *testing.T) {
	ts := newTestServer(t, Options{})

	for i := 0; i < 3; i++ {
		ts.get(t, "/api/absorb/user1")
	}
	if resp := ts.get(t, "/api/absorb/user1"); resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("user1 4th request: status = %d, want 429", resp.StatusCode)
	}
	if resp := ts.get(t, "/api/absorb/user2"); resp.StatusCode != http.StatusOK {
		t.Errorf("user2 1st request: status = %d, want 200", resp.StatusCode)
	}
}

func TestServer_PostArgs(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp := ts.post(t, `{"args":["SHIELD.absorb","user1","30","60","13"]}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	d := decodeDecision(t, resp)
	if d.Result != 17 {
		t.Errorf("result = %d, want 17", d.Result)
	}
	if d.Capacity != 30 {
		t.Errorf("capacity = %d, want 30", d.Capacity)
	}
}

func TestServer_PostFields(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp := ts.post(t, `{"key":"user1","algorithm":"leaky_bucket","capacity":10,"period":60,"tokens":4}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	d := decodeDecision(t, resp)
	if d.Algorithm != policy.AlgorithmLeakyBucket {
		t.Errorf("algorithm = %s, want leaky_bucket", d.Algorithm)
	}
	if d.Result != 6 {
		t.Errorf("result = %d, want 6", d.Result)
	}
}

func TestServer_PostFieldsUseDefaults(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp := ts.post(t, `{"key":"user1"}`)

	d := decodeDecision(t, resp)
	if d.Capacity != defaultPolicy.Capacity || d.PeriodMS != defaultPolicy.PeriodMS {
		t.Errorf("policy = %d/%dms, want defaults %d/%dms",
			d.Capacity, d.PeriodMS, defaultPolicy.Capacity, defaultPolicy.PeriodMS)
	}
	if d.Tokens != policy.DefaultTokens {
		t.Errorf("tokens = %d, want %d", d.Tokens, policy.DefaultTokens)
	}
}

func TestServer_PostInvalid(t *testing.T) {
	ts := newTestServer(t, Options{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"key":`},
		{"unknown field", `{"key":"user1","burst":5}`},
		{"unknown algorithm", `{"key":"user1","algorithm":"gcra"}`},
		{"missing key", `{"capacity":5}`},
		{"bad args", `{"args":["SHIELD.absorb","user1"]}`},
		{"negative capacity", `{"key":"user1","capacity":-5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.post(t, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			var body map[string]string
			json.NewDecoder(resp.Body).Decode(&body)
			if body["error"] == "" {
				t.Error("error message should be set")
			}
		})
	}
}

func TestServer_CorruptedState(t *testing.T) {
	ts := newTestServer(t, Options{})
	if err := ts.store.SetWithTTL(ctx, "tp:tb:user1", []byte("garbage"), time.Minute); err != nil {
		t.Fatal(err)
	}

	resp := ts.get(t, "/api/absorb/user1")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

type downStore struct{}

func (downStore) Get(context.Context, string) (storage.Entry, bool, error) {
	return storage.Entry{}, false, fmt.Errorf("%w: connection refused", storage.ErrUnavailable)
}

func (downStore) SetWithTTL(context.Context, string, []byte, time.Duration) error {
	return fmt.Errorf("%w: connection refused", storage.ErrUnavailable)
}

func (downStore) NowMillis(context.Context) (int64, error) {
	return 0, fmt.Errorf("%w: connection refused", storage.ErrUnavailable)
}

func TestServer_StoreUnavailable(t *testing.T) {
	exec, err := limiter.NewExecutor(downStore{})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(New("", exec, Options{Policy: defaultPolicy}).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/absorb/user1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestServer_KeepsClientRequestID(t *testing.T) {
	ts := newTestServer(t, Options{})

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set(requestIDHeader, "req-42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get(requestIDHeader); got != "req-42" {
		t.Errorf("X-Request-ID = %q, want %q", got, "req-42")
	}
}

func TestServer_RecordsRequests(t *testing.T) {
	rec := recorder.New(nil)
	ts := newTestServer(t, Options{Recorder: rec})

	ts.get(t, "/api/absorb/user1")
	ts.vc.Advance(time.Second)
	ts.post(t, `{"key":"user2","tokens":2}`)
	ts.get(t, "/health")

	records := rec.Records()
	if len(records) != 2 {
		t.Fatalf("recorded %d requests, want 2", len(records))
	}
	if records[0].Key != "user1" || records[0].Endpoint != "GET /api/absorb/user1" {
		t.Errorf("record[0] = %+v", records[0])
	}
	if !records[0].Timestamp.Equal(epoch) {
		t.Errorf("record[0] timestamp = %v, want %v", records[0].Timestamp, epoch)
	}
	if records[1].Key != "user2" || records[1].Tokens != 2 || records[1].Endpoint != "POST /api/absorb" {
		t.Errorf("record[1] = %+v", records[1])
	}
}

func TestServer_ShutdownStopsServing(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	exec, err := limiter.NewExecutor(storage.NewMemoryStorage(vc), limiter.WithClock(vc))
	if err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := New(ln.Addr().String(), exec, Options{Policy: defaultPolicy, Hub: NewHub()})

	done := make(chan error, 1)
	go func() { done <- srv.StartOnListener(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("StartOnListener() error = %v, want nil after shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", policy.ErrInvalidArgument), http.StatusBadRequest},
		{fmt.Errorf("%w: boom", storage.ErrUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: junk", limiter.ErrCorruptedState), http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		writeError(w, tt.err)
		if w.Code != tt.want {
			t.Errorf("writeError(%v) status = %d, want %d", tt.err, w.Code, tt.want)
		}
		if !bytes.Contains(w.Body.Bytes(), []byte(tt.err.Error())) {
			t.Errorf("body %q should contain %q", w.Body.String(), tt.err.Error())
		}
	}
}
