package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/acme/callbridge/internal/domain"
	callsvc "github.com/acme/callbridge/internal/service/call"
	"github.com/acme/callbridge/pkg/calls"
	apperrors "github.com/acme/callbridge/pkg/errors"
)

type fakeCalls struct {
	placeInput callsvc.PlaceInput
	placeRes   *callsvc.PlaceResult
	err        error

	listAfter string
	listLimit int
	entries   []domain.CallEntry

	historyToken string
	history      *callsvc.HistoryResult
}

func (f *fakeCalls) Place(_ context.Context, in callsvc.PlaceInput) (*callsvc.PlaceResult, error) {
	f.placeInput = in
	if f.err != nil {
		return nil, f.err
	}
	return f.placeRes, nil
}

func (f *fakeCalls) Get(_ context.Context, sid string) (calls.Call, error) {
	if f.err != nil {
		return calls.Call{}, f.err
	}
	return calls.Call{SID: sid, From: "+1", To: "+2", Status: calls.StatusBusy}, nil
}

func (f *fakeCalls) List(_ context.Context, afterSID string, limit int) ([]domain.CallEntry, error) {
	f.listAfter, f.listLimit = afterSID, limit
	return f.entries, f.err
}

func (f *fakeCalls) History(_ context.Context, _ string, _ int, token string) (*callsvc.HistoryResult, error) {
	f.historyToken = token
	if f.err != nil {
		return nil, f.err
	}
	return f.history, nil
}

type pingFunc func(context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

func newTestApp(svc CallService, checks map[string]Pinger) *fiber.App {
	h := NewHandlerSet(svc, checks, nil)
	app := fiber.New(fiber.Config{ErrorHandler: h.ErrorHandler})
	h.Register(app)
	return app
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var body map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decode body %q: %v", raw, err)
		}
	}
	return resp.StatusCode, body
}

func TestPlaceCallCreated(t *testing.T) {
	svc := &fakeCalls{placeRes: &callsvc.PlaceResult{Call: calls.Call{SID: "CA1", From: "+1", To: "+2", Status: calls.StatusQueued}}}
	app := newTestApp(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/calls", strings.NewReader(`{"from":"+1","to":"+2","url":"https://example.com/twiml"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyHeader, "key-1")

	status, body := doRequest(t, app, req)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%v)", status, body)
	}
	if body["sid"] != "CA1" || body["status"] != "queued" || body["terminal"] != false {
		t.Fatalf("unexpected body %v", body)
	}
	if svc.placeInput.IdempotencyKey != "key-1" || svc.placeInput.URL != "https://example.com/twiml" {
		t.Fatalf("unexpected input %+v", svc.placeInput)
	}
}

func TestPlaceCallReplayReturnsOK(t *testing.T) {
	svc := &fakeCalls{placeRes: &callsvc.PlaceResult{Call: calls.Call{SID: "CA1", From: "+1", To: "+2", Status: calls.StatusCompleted}, Replayed: true}}
	app := newTestApp(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/calls", strings.NewReader(`{"from":"+1","to":"+2","twiml":"<Response/>"}`))
	req.Header.Set("Content-Type", "application/json")

	status, body := doRequest(t, app, req)
	if status != http.StatusOK || body["terminal"] != true {
		t.Fatalf("expected 200 replay, got %d (%v)", status, body)
	}
}

func TestPlaceCallInvalidBody(t *testing.T) {
	app := newTestApp(&fakeCalls{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/calls", strings.NewReader(`{`))
	req.Header.Set("Content-Type", "application/json")

	if status, _ := doRequest(t, app, req); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestErrorTranslation(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", apperrors.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", apperrors.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: in flight", apperrors.ErrConflict), http.StatusConflict},
		{&calls.DecodeError{Kind: calls.MissingField, Field: calls.FieldSID}, http.StatusBadGateway},
		{fmt.Errorf("%w: auth", apperrors.ErrUpstream), http.StatusBadGateway},
		{fmt.Errorf("%w: down", apperrors.ErrUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		app := newTestApp(&fakeCalls{err: tc.err}, nil)
		status, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/calls/CA1", nil))
		if status != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, status)
		}
		if body["error"] == "" {
			t.Fatalf("%v: expected error message", tc.err)
		}
	}
}

func TestGetCall(t *testing.T) {
	app := newTestApp(&fakeCalls{}, nil)
	status, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/calls/CA77", nil))
	if status != http.StatusOK || body["sid"] != "CA77" || body["status"] != "busy" {
		t.Fatalf("unexpected response %d %v", status, body)
	}
}

func TestListCalls(t *testing.T) {
	seen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := &fakeCalls{entries: []domain.CallEntry{
		{SID: "CA2", LastStatus: calls.StatusInProgress, Observations: 3, FirstSeenAt: seen, LastSeenAt: seen},
	}}
	app := newTestApp(svc, nil)

	status, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/calls?after_sid=CA1&limit=1", nil))
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if svc.listAfter != "CA1" || svc.listLimit != 1 {
		t.Fatalf("unexpected query %q %d", svc.listAfter, svc.listLimit)
	}
	items, _ := body["calls"].([]any)
	if len(items) != 1 || body["next_after_sid"] != "CA2" {
		t.Fatalf("unexpected body %v", body)
	}
	first := items[0].(map[string]any)
	if first["last_status"] != "in-progress" {
		t.Fatalf("unexpected entry %v", first)
	}

	status, body = doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/calls?limit=2", nil))
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if _, ok := body["next_after_sid"]; ok {
		t.Fatalf("a short page must not carry a cursor: %v", body)
	}

	doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/calls", nil))
	if svc.listLimit != defaultPageLimit {
		t.Fatalf("expected default limit %d, got %d", defaultPageLimit, svc.listLimit)
	}
	doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/calls?limit=10000", nil))
	if svc.listLimit != maxPageLimit {
		t.Fatalf("expected limit capped at %d, got %d", maxPageLimit, svc.listLimit)
	}

	if status, _ := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/calls?limit=abc", nil)); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", status)
	}
}

func TestListSnapshots(t *testing.T) {
	svc := &fakeCalls{history: &callsvc.HistoryResult{
		Snapshots:     []domain.Snapshot{{SID: "CA1", Status: calls.StatusRinging, Kind: domain.ObservationObserved, Provider: "twilio"}},
		NextPageToken: "next",
	}}
	app := newTestApp(svc, nil)

	status, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/calls/CA1/snapshots?page_token=abc", nil))
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if svc.historyToken != "abc" || body["next_page_token"] != "next" || body["sid"] != "CA1" {
		t.Fatalf("unexpected body %v (token %q)", body, svc.historyToken)
	}
	snaps, _ := body["snapshots"].([]any)
	if len(snaps) != 1 || snaps[0].(map[string]any)["status"] != "ringing" {
		t.Fatalf("unexpected snapshots %v", snaps)
	}
}

func TestHealth(t *testing.T) {
	healthy := map[string]Pinger{
		"postgres": pingFunc(func(context.Context) error { return nil }),
	}
	status, body := doRequest(t, newTestApp(&fakeCalls{}, healthy), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if status != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected healthy response %d %v", status, body)
	}

	degraded := map[string]Pinger{
		"postgres": pingFunc(func(context.Context) error { return nil }),
		"redis":    pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	}
	status, body = doRequest(t, newTestApp(&fakeCalls{}, degraded), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}
	errs, _ := body["errors"].(map[string]any)
	if errs["redis"] != "connection refused" || errs["postgres"] != nil {
		t.Fatalf("unexpected errors %v", errs)
	}
}
