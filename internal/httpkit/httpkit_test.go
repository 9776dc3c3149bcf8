package httpkit

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestNewClient_Timeouts(t *testing.T) {
	tests := []struct {
		name string
		opts []ClientOption
		want time.Duration
	}{
		{"default", nil, 30 * time.Second},
		{"custom", []ClientOption{WithTimeout(5 * time.Second)}, 5 * time.Second},
		{"disabled", []ClientOption{WithTimeout(0)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.opts...)
			if c.Timeout != tt.want {
				t.Errorf("Timeout = %v, want %v", c.Timeout, tt.want)
			}
		})
	}
}

func echoUA(t *testing.T, c *http.Client, preset string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("User-Agent")))
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	if preset != "" {
		req.Header.Set("User-Agent", preset)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestNewClient_UserAgent(t *testing.T) {
	if got := echoUA(t, NewClient(), ""); !strings.HasPrefix(got, "folio/") {
		t.Errorf("default UA = %q, want folio/ prefix", got)
	}
	if got := echoUA(t, NewClient(WithUserAgent("Probe/1.0")), ""); got != "Probe/1.0" {
		t.Errorf("custom UA = %q, want Probe/1.0", got)
	}
	if got := echoUA(t, NewClient(), "Caller/2.0"); got != "Caller/2.0" {
		t.Errorf("preset UA = %q, want Caller/2.0", got)
	}
	if got := echoUA(t, NewClient(WithoutUserAgent()), ""); strings.HasPrefix(got, "folio/") {
		t.Errorf("WithoutUserAgent UA = %q, want no folio/ prefix", got)
	}
}

func TestNewTransport_HasTimeouts(t *testing.T) {
	tr := NewTransport()
	if tr.TLSHandshakeTimeout != DefaultTLSHandshakeTimeout {
		t.Errorf("TLSHandshakeTimeout = %v, want %v", tr.TLSHandshakeTimeout, DefaultTLSHandshakeTimeout)
	}
	if tr.ResponseHeaderTimeout != DefaultResponseHeader {
		t.Errorf("ResponseHeaderTimeout = %v, want %v", tr.ResponseHeaderTimeout, DefaultResponseHeader)
	}
	if tr.MaxIdleConnsPerHost != DefaultMaxIdleConnsPerHost {
		t.Errorf("MaxIdleConnsPerHost = %d, want %d", tr.MaxIdleConnsPerHost, DefaultMaxIdleConnsPerHost)
	}
}

func TestReadErrorBody(t *testing.T) {
	if got := ReadErrorBody(io.NopCloser(strings.NewReader("bad credentials")), 512); got != "bad credentials" {
		t.Errorf("ReadErrorBody = %q", got)
	}
	if got := ReadErrorBody(io.NopCloser(strings.NewReader(strings.Repeat("x", 100))), 10); len(got) != 10 {
		t.Errorf("truncated len = %d, want 10", len(got))
	}
	if got := ReadErrorBody(nil, 512); got != "" {
		t.Errorf("nil body = %q, want empty", got)
	}
}

// scriptedRoundTripper replays a fixed list of outcomes.
type scriptedRoundTripper struct {
	errs     []error
	statuses []int
	calls    int
}

func (s *scriptedRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	status := http.StatusOK
	if i < len(s.statuses) && s.statuses[i] != 0 {
		status = s.statuses[i]
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader("ok"))}, nil
}

func dialErr(errno syscall.Errno) error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: errno}
}

func TestRetryTransport(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		errs        []error
		statuses    []int
		retryStatus bool
		wantCalls   int
		wantStatus  int
		wantErr     bool
	}{
		{name: "success", method: "GET", wantCalls: 1, wantStatus: 200},
		{name: "host unreachable then ok", method: "GET", errs: []error{dialErr(syscall.EHOSTUNREACH)}, wantCalls: 2, wantStatus: 200},
		{name: "refused exhausts retries", method: "GET", errs: []error{dialErr(syscall.ECONNREFUSED), dialErr(syscall.ECONNREFUSED), dialErr(syscall.ECONNREFUSED)}, wantCalls: 3, wantErr: true},
		{name: "reset not retried", method: "GET", errs: []error{dialErr(syscall.ECONNRESET)}, wantCalls: 1, wantErr: true},
		{name: "503 retried when enabled", method: "GET", statuses: []int{503}, retryStatus: true, wantCalls: 2, wantStatus: 200},
		{name: "503 ignored by default", method: "GET", statuses: []int{503}, wantCalls: 1, wantStatus: 503},
		{name: "503 on POST not retried", method: "POST", statuses: []int{503}, retryStatus: true, wantCalls: 1, wantStatus: 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &scriptedRoundTripper{errs: tt.errs, statuses: tt.statuses}
			rt := &retryTransport{
				base:        base,
				count:       2,
				delay:       time.Millisecond,
				retryStatus: tt.retryStatus,
				logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
			}
			req, _ := http.NewRequest(tt.method, "http://example.com", nil)
			resp, err := rt.RoundTrip(req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if base.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", base.calls, tt.wantCalls)
			}
			if err == nil && resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}
