package identity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gratheon/graphql-gateway/internal/identity"
)

func newServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
}

func TestValidateApiToken_Success(t *testing.T) {
	srv := newServer(t, `{"data":{"validateApiToken":{"__typename":"TokenUser","id":"user-1"}}}`)
	defer srv.Close()

	c := identity.New(srv.URL, srv.Client())
	user, ok, err := c.ValidateApiToken(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true for a TokenUser discriminator")
	}
	if user.ID != "user-1" {
		t.Errorf("ID = %q, want user-1", user.ID)
	}
}

func TestValidateApiToken_ErrorDiscriminatorFails(t *testing.T) {
	srv := newServer(t, `{"data":{"validateApiToken":{"__typename":"Error","code":"INVALID_TOKEN"}}}`)
	defer srv.Close()

	c := identity.New(srv.URL, srv.Client())
	_, ok, err := c.ValidateApiToken(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for an Error discriminator")
	}
}

func TestValidateApiToken_TransportFailure(t *testing.T) {
	c := identity.New("http://127.0.0.1:0", http.DefaultClient)
	_, ok, err := c.ValidateApiToken(context.Background(), "tok")
	if err == nil {
		t.Fatal("expected a transport error for an unreachable identity service")
	}
	if ok {
		t.Fatal("expected ok=false on transport failure")
	}
}

func TestValidateShareToken_Success(t *testing.T) {
	srv := newServer(t, `{"data":{"validateShareToken":{"__typename":"ShareTokenDetails","id":"share-1","name":"n","userId":"user-9","scopes":[{"queryName":"hives"}]}}}`)
	defer srv.Close()

	c := identity.New(srv.URL, srv.Client())
	details, ok, err := c.ValidateShareToken(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if details.UserID != "user-9" {
		t.Errorf("UserID = %q, want user-9", details.UserID)
	}
	if len(details.Scopes) != 1 || details.Scopes[0].QueryName != "hives" {
		t.Errorf("Scopes = %+v, want one entry for hives", details.Scopes)
	}
}

func TestValidateShareToken_MissingUserIDIsHardFailure(t *testing.T) {
	srv := newServer(t, `{"data":{"validateShareToken":{"__typename":"ShareTokenDetails","id":"share-1","name":"n","scopes":[]}}}`)
	defer srv.Close()

	c := identity.New(srv.URL, srv.Client())
	_, ok, err := c.ValidateShareToken(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false when the reply omits userId, per the missing-userId hard-failure resolution")
	}
}

func TestValidateShareToken_GraphQLErrorsFails(t *testing.T) {
	srv := newServer(t, `{"errors":[{"message":"boom"}]}`)
	defer srv.Close()

	c := identity.New(srv.URL, srv.Client())
	_, ok, err := c.ValidateShareToken(context.Background(), "tok")
	if err == nil {
		t.Fatal("expected an error when the identity service returns GraphQL errors")
	}
	if ok {
		t.Fatal("expected ok=false")
	}
}

func TestValidateApiToken_RequestBodyShape(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"validateApiToken":{"__typename":"TokenUser","id":"user-1"}}}`))
	}))
	defer srv.Close()

	c := identity.New(srv.URL, srv.Client())
	if _, _, err := c.ValidateApiToken(context.Background(), "tok-abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vars, ok := gotBody["variables"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected variables object in request body, got %v", gotBody)
	}
	if vars["token"] != "tok-abc" {
		t.Errorf("variables.token = %v, want tok-abc", vars["token"])
	}
}
