// Package dispatcher forwards planned sub-operations to subgraph HTTP
// endpoints, injecting internal identity headers and the shared-secret
// router signature. It never forwards client-supplied Authorization or
// cookie headers.
package dispatcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/gratheon/graphql-gateway/internal/apierr"
	"github.com/gratheon/graphql-gateway/internal/auth"
)

// Dispatcher is bound to a single subgraph endpoint. A fresh Dispatcher is
// constructed per subgraph per supergraph generation, keeping the endpoint
// URL immutable within a generation.
type Dispatcher struct {
	subgraphName string
	endpoint     string
	httpClient   *http.Client
	signature    string
}

// New builds a Dispatcher for one subgraph. signature is the shared secret
// stamped into every outbound request as internal-router-signature.
func New(subgraphName, endpoint, signature string, httpClient *http.Client) *Dispatcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Dispatcher{
		subgraphName: subgraphName,
		endpoint:     endpoint,
		httpClient:   httpClient,
		signature:    signature,
	}
}

// Response mirrors a subgraph's GraphQL response envelope, passed upward
// untouched.
type Response struct {
	Data       map[string]interface{} `json:"data,omitempty"`
	Errors     []interface{}          `json:"errors,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// Dispatch POSTs query/variables to the subgraph's /graphql endpoint,
// carrying the injected identity/signature headers and no others. identity
// carries the request's resolved AuthContext; it is never used to forward
// the client's own Authorization header or cookies.
func (d *Dispatcher) Dispatch(ctx context.Context, identity auth.Context, query string, variables map[string]interface{}) (map[string]interface{}, error) {
	body := map[string]interface{}{"query": query}
	if len(variables) > 0 {
		body["variables"] = variables
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "failed to marshal subgraph request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "failed to build subgraph request", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("internal-router-signature", d.signature)
	if userID, ok := identity.UserID(); ok {
		req.Header.Set("internal-userId", userID)
	}
	if scopes, ok := identity.ShareScopes(); ok {
		encoded, err := json.Marshal(scopes)
		if err != nil {
			return nil, apierr.Wrap(apierr.KindInternal, "failed to encode share scopes header", err)
		}
		req.Header.Set("X-Share-Scopes", string(encoded))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindSubgraphFailure,
			fmt.Sprintf("subgraph %q unreachable", d.subgraphName), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindSubgraphFailure,
			fmt.Sprintf("subgraph %q: failed to read response", d.subgraphName), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierr.New(apierr.KindSubgraphFailure,
			fmt.Sprintf("subgraph %q returned status %d", d.subgraphName, resp.StatusCode))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, apierr.Wrap(apierr.KindSubgraphFailure,
			fmt.Sprintf("subgraph %q: failed to decode response", d.subgraphName), err)
	}

	return result, nil
}

// Name returns the subgraph name this dispatcher targets.
func (d *Dispatcher) Name() string { return d.subgraphName }
