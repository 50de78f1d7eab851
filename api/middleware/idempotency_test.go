package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/tripops-backend/api/responses"
	pkgerrors "github.com/angelmondragon/tripops-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

const creditPattern = "/api/v1/wallets/{walletId}/credits"

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		want    time.Duration
		ok      bool
	}{
		{"create trip", http.MethodPost, "/api/v1/trips", defaultIdempotencyTTL, true},
		{"voucher", http.MethodPut, "/api/v1/trips/{tripId}/voucher", criticalIdempotencyTTL, true},
		{"wallet credit", http.MethodPost, creditPattern, criticalIdempotencyTTL, true},
		{"leave request", http.MethodPost, "/api/v1/drivers/{driverId}/leave-requests", defaultIdempotencyTTL, true},
		{"voucher wrong method", http.MethodPost, "/api/v1/trips/{tripId}/voucher", 0, false},
		{"read", http.MethodGet, "/api/v1/trips/{tripId}", 0, false},
	}

	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.pattern)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && ttl != tt.want {
			t.Fatalf("%s: expected ttl=%v got %v", tt.name, tt.want, ttl)
		}
	}
}

func TestIdempotencyMiddlewareRequiresHeader(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/wallets/w1/credits", creditPattern, strings.NewReader(`{"amount":"10"}`))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyMiddlewareSkipsUnlistedRoutes(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	})

	req := requestWithPattern(http.MethodGet, "/api/v1/trips/t1", "/api/v1/trips/{tripId}", nil)
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	if !handlerCalled {
		t.Fatalf("expected handler to run for unlisted route")
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/wallets/w1/credits", creditPattern, strings.NewReader(`{"amount":"10"}`))
	req.Header.Set("Idempotency-Key", "abc")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected first response 201 got %d", resp.Code)
	}
	if resp.Header().Get(replayedHeader) != "" {
		t.Fatalf("first response must not be marked replayed")
	}

	replay := requestWithPattern(http.MethodPost, "/api/v1/wallets/w1/credits", creditPattern, strings.NewReader(`{"amount":"10"}`))
	replay.Header.Set("Idempotency-Key", "abc")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, replay)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected replay status 201 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if rec.Header().Get(replayedHeader) != "true" {
		t.Fatalf("expected replay header")
	}
	if strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyMiddlewareScopesByPath(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})

	for _, wallet := range []string{"w1", "w2"} {
		req := requestWithPattern(http.MethodPost, "/api/v1/wallets/"+wallet+"/credits", creditPattern, strings.NewReader(`{"amount":"10"}`))
		req.Header.Set("Idempotency-Key", "same")
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected distinct wallets to run separately, got %d calls", calls)
	}
	if len(store.data) != 2 {
		t.Fatalf("expected two stored records got %d", len(store.data))
	}
}

func TestIdempotencyMiddlewareDoesNotStoreServerErrors(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/v1/wallets/w1/credits", creditPattern, strings.NewReader(`{"amount":"10"}`))
		req.Header.Set("Idempotency-Key", "retry-me")
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected retry after 503 to reach handler, got %d calls", calls)
	}
	if len(store.data) != 1 {
		t.Fatalf("expected only the success to be stored, got %d", len(store.data))
	}
}

func TestIdempotencyMiddlewareDoesNotStoreRetryableErrors(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeVersionConflict, "wallet changed"))
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	var last *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPut, "/api/v1/trips/t1/voucher", "/api/v1/trips/{tripId}/voucher", strings.NewReader(`{"advance_balance":"10"}`))
		req.Header.Set("Idempotency-Key", "k1")
		last = httptest.NewRecorder()
		mw(handler).ServeHTTP(last, req)
		if i == 0 && last.Code != http.StatusConflict {
			t.Fatalf("expected 409 on first attempt got %d", last.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected retry after version conflict to reach handler, got %d calls", calls)
	}
	if last.Code != http.StatusOK || last.Header().Get("Idempotent-Replayed") != "" {
		t.Fatalf("expected fresh 200 got %d replayed=%q", last.Code, last.Header().Get("Idempotent-Replayed"))
	}
	if len(store.data) != 1 {
		t.Fatalf("expected only the success to be stored, got %d", len(store.data))
	}
}

func TestIdempotencyMiddlewareStoresClientErrors(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "balance too low"))
	})

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPut, "/api/v1/trips/t1/voucher", "/api/v1/trips/{tripId}/voucher", strings.NewReader(`{"advance_balance":"900"}`))
		req.Header.Set("Idempotency-Key", "k2")
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 1 {
		t.Fatalf("expected stored 422 to be replayed, got %d calls", calls)
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/wallets/w1/credits", creditPattern, strings.NewReader(`{"amount":"10"}`))
	req.Header.Set("Idempotency-Key", "xyz")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	replay := requestWithPattern(http.MethodPost, "/api/v1/wallets/w1/credits", creditPattern, strings.NewReader(`{"amount":"99"}`))
	replay.Header.Set("Idempotency-Key", "xyz")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, replay)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, payload.Error.Code)
	}
}
