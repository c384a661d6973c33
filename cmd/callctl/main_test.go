package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/acme/callbridge/pkg/calls"
)

func newProviderServer(t *testing.T) (*httptest.Server, *string) {
	t.Helper()
	var lastBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		lastBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/Accounts/AC1/Calls.json":
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"sid":"CA9","status":"queued","from":"+1","to":"+2"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/Accounts/AC1/Calls/CA9.json":
			_, _ = io.WriteString(w, `{"sid":"CA9","status":"trying","from":"+1","to":"+2"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	t.Setenv("CALLBRIDGE_PROVIDER_ACCOUNT_SID", "AC1")
	t.Setenv("CALLBRIDGE_PROVIDER_AUTH_TOKEN", "secret")
	t.Setenv("CONFIG_FILE", "")
	return srv, &lastBody
}

func run(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCreateCommand(t *testing.T) {
	srv, body := newProviderServer(t)

	out, err := run("create", "--base-url", srv.URL, "--from", "+1", "--to", "+2", "--twiml", "<Response/>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *body != "To=%2B2&From=%2B1&Twiml=%3CResponse%2F%3E" {
		t.Fatalf("unexpected request body %q", *body)
	}

	var got callOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if got.SID != "CA9" || got.Status != calls.StatusQueued || got.Terminal {
		t.Fatalf("unexpected output %+v", got)
	}
}

func TestCreateRequiresInstructions(t *testing.T) {
	srv, _ := newProviderServer(t)

	if _, err := run("create", "--base-url", srv.URL, "--from", "+1", "--to", "+2"); err == nil {
		t.Fatalf("expected error without --url or --twiml")
	}
	_, err := run("create", "--base-url", srv.URL, "--from", "+1", "--to", "+2", "--url", "https://x", "--twiml", "<Response/>")
	if err == nil || !strings.Contains(err.Error(), "none of the others can be") {
		t.Fatalf("expected mutually exclusive flag error, got %v", err)
	}
}

func TestGetCommandSurfacesParseError(t *testing.T) {
	srv, _ := newProviderServer(t)

	_, err := run("get", "--base-url", srv.URL, "CA9")
	var decodeErr *calls.DecodeError
	if !errors.As(err, &decodeErr) || decodeErr.Kind != calls.UnrecognizedStatus || decodeErr.Value != "trying" {
		t.Fatalf("expected unrecognized status error, got %v", err)
	}
}
