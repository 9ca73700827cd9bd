package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fisher/internal/job"
	"fisher/internal/processor"
)

type fakePipeline struct {
	outcome processor.Outcome
	err     error
	lastReq *job.Request
	lastName string
}

func (f *fakePipeline) Submit(req *job.Request, hookName string) (processor.Outcome, error) {
	f.lastReq = req
	f.lastName = hookName
	return f.outcome, f.err
}

type fakeHealth struct{ h processor.Health }

func (f *fakeHealth) Health() processor.Health { return f.h }

func TestHandleHookEnqueued(t *testing.T) {
	p := &fakePipeline{outcome: processor.OutcomeEnqueued}
	s := NewServer(p, &fakeHealth{}, 0, true, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/hook/deploy", bytes.NewBufferString(`{"a":1}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if p.lastName != "deploy" {
		t.Errorf("hook name = %q, want deploy", p.lastName)
	}
	if string(p.lastReq.Body) != `{"a":1}` {
		t.Errorf("body = %q", p.lastReq.Body)
	}
}

func TestHandleHookIgnored(t *testing.T) {
	p := &fakePipeline{outcome: processor.OutcomeIgnored}
	s := NewServer(p, &fakeHealth{}, 0, true, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/hook/deploy", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for an ignored (ping) request", rec.Code)
	}
}

func TestHandleHookNotFoundMapsTo400(t *testing.T) {
	p := &fakePipeline{err: &processor.Error{Kind: processorHookNotFoundKind()}}
	s := NewServer(p, &fakeHealth{}, 0, true, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/hook/missing", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error != "hook_not_found" {
		t.Errorf("error kind = %q, want hook_not_found", body.Error)
	}
}

func TestHandleHealthDisabled(t *testing.T) {
	p := &fakePipeline{}
	s := NewServer(p, &fakeHealth{}, 0, false, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when health is disabled", rec.Code)
	}
}

func TestHandleHealthReportsCounters(t *testing.T) {
	p := &fakePipeline{}
	hs := &fakeHealth{h: processor.Health{Queued: 2, Executing: 1, WorkersBusy: 1}}
	s := NewServer(p, hs, 0, true, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["queued"].(float64) != 2 {
		t.Errorf("queued = %v, want 2", body["queued"])
	}
}

func TestReloadLockParksHandleHook(t *testing.T) {
	p := &fakePipeline{outcome: processor.OutcomeEnqueued}
	s := NewServer(p, &fakeHealth{}, 0, true, nil, nil)

	s.Lock()
	done := make(chan struct{})
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/hook/x", bytes.NewBufferString(`{}`))
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("handleHook completed while the front-end lock was held")
	case <-time.After(50 * time.Millisecond):
	}
	s.Unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handleHook never resumed after Unlock")
	}
}

func TestResolveSourceIPNoProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	if ip := resolveSourceIP(req, 0); ip != "10.0.0.5" {
		t.Errorf("resolveSourceIP = %q, want 10.0.0.5", ip)
	}
}

func TestResolveSourceIPBehindProxies(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "1.1.1.1, 2.2.2.2, 3.3.3.3")

	if ip := resolveSourceIP(req, 1); ip != "3.3.3.3" {
		t.Errorf("depth 1 = %q, want 3.3.3.3 (rightmost)", ip)
	}
	if ip := resolveSourceIP(req, 2); ip != "2.2.2.2" {
		t.Errorf("depth 2 = %q, want 2.2.2.2", ip)
	}
	if ip := resolveSourceIP(req, 99); ip != "1.1.1.1" {
		t.Errorf("depth beyond chain length = %q, want leftmost 1.1.1.1 (clamped)", ip)
	}
}

func TestResolveSourceIPBehindProxiesMissingHeaderFallsBack(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	if ip := resolveSourceIP(req, 1); ip != "127.0.0.1" {
		t.Errorf("resolveSourceIP = %q, want peer fallback when XFF is absent", ip)
	}
}

// processorHookNotFoundKind avoids importing processor's unexported Kind
// iota ordering into the test's assumptions; it just needs the Kind an
// unknown hook name produces, whose HTTPStatus is 400 (an invalid request).
func processorHookNotFoundKind() processor.Kind {
	return processor.KindHookNotFound
}
