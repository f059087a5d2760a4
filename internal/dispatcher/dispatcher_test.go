package dispatcher_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gratheon/graphql-gateway/internal/auth"
	"github.com/gratheon/graphql-gateway/internal/dispatcher"
	"github.com/gratheon/graphql-gateway/internal/scope"
)

func ctxBackground() context.Context { return context.Background() }

func TestDispatch_AnonymousSendsOnlyRouterSignature(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer srv.Close()

	d := dispatcher.New("hive-api", srv.URL, "sig-123", srv.Client())
	resp, err := d.Dispatch(ctxBackground(), auth.Anonymous(), "{ hives { id } }", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp["data"] == nil {
		t.Fatalf("expected data in response, got %v", resp)
	}

	if got := gotHeaders.Get("internal-router-signature"); got != "sig-123" {
		t.Errorf("internal-router-signature = %q, want %q", got, "sig-123")
	}
	if got := gotHeaders.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if got := gotHeaders.Get("internal-userId"); got != "" {
		t.Errorf("internal-userId should be absent for anonymous identity, got %q", got)
	}
	if got := gotHeaders.Get("X-Share-Scopes"); got != "" {
		t.Errorf("X-Share-Scopes should be absent for anonymous identity, got %q", got)
	}
	if got := gotHeaders.Get("Authorization"); got != "" {
		t.Errorf("Authorization must never be forwarded to subgraphs, got %q", got)
	}
}

func TestDispatch_IdentifiedSendsUserIDNoScopes(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	d := dispatcher.New("hive-api", srv.URL, "sig-123", srv.Client())
	if _, err := d.Dispatch(ctxBackground(), auth.Identified("user-42"), "{ hives { id } }", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := gotHeaders.Get("internal-userId"); got != "user-42" {
		t.Errorf("internal-userId = %q, want user-42", got)
	}
	if got := gotHeaders.Get("X-Share-Scopes"); got != "" {
		t.Errorf("X-Share-Scopes should be absent for an identified (non-shared) identity, got %q", got)
	}
}

func TestDispatch_SharedSendsUserIDAndScopes(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	scopes := scope.Set{AllowedQueries: []scope.Entry{{QueryName: "hives"}}}
	d := dispatcher.New("hive-api", srv.URL, "sig-123", srv.Client())
	if _, err := d.Dispatch(ctxBackground(), auth.Shared("user-7", scopes), "{ hives { id } }", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := gotHeaders.Get("internal-userId"); got != "user-7" {
		t.Errorf("internal-userId = %q, want user-7", got)
	}

	var decoded scope.Set
	if err := json.Unmarshal([]byte(gotHeaders.Get("X-Share-Scopes")), &decoded); err != nil {
		t.Fatalf("failed to decode X-Share-Scopes header: %v", err)
	}
	if len(decoded.AllowedQueries) != 1 || decoded.AllowedQueries[0].QueryName != "hives" {
		t.Errorf("decoded share scopes = %+v, want one entry for hives", decoded)
	}
}

func TestDispatch_NonOKStatusIsSubgraphFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	d := dispatcher.New("hive-api", srv.URL, "sig-123", srv.Client())
	_, err := d.Dispatch(ctxBackground(), auth.Anonymous(), "{ hives { id } }", nil)
	if err == nil {
		t.Fatal("expected an error for a non-2xx subgraph response")
	}
}

func TestDispatch_UnreachableSubgraphIsSubgraphFailure(t *testing.T) {
	d := dispatcher.New("hive-api", "http://127.0.0.1:0", "sig-123", http.DefaultClient)
	_, err := d.Dispatch(ctxBackground(), auth.Anonymous(), "{ hives { id } }", nil)
	if err == nil {
		t.Fatal("expected an error for an unreachable subgraph endpoint")
	}
}

func TestDispatch_VariablesOmittedWhenEmpty(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	d := dispatcher.New("hive-api", srv.URL, "sig-123", srv.Client())
	if _, err := d.Dispatch(ctxBackground(), auth.Anonymous(), "{ hives { id } }", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := gotBody["variables"]; ok {
		t.Errorf("expected variables key to be omitted from the request body when empty, got %v", gotBody)
	}
}
