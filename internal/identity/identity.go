// Package identity is a thin GraphQL client for the external identity
// service: it validates bearer API tokens and share tokens on the Auth
// Pipeline's behalf.
package identity

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// TokenUser is the successful discriminant of ValidateApiToken.
type TokenUser struct {
	ID string
}

// ShareTokenDetails is the successful discriminant of ValidateShareToken.
type ShareTokenDetails struct {
	ID     string
	Name   string
	UserID string
	Scopes []ShareScopeEntry
}

// ShareScopeEntry mirrors the wire shape of one allowed query in a
// validated share token's scope list.
type ShareScopeEntry struct {
	QueryName    string         `json:"queryName"`
	RequiredArgs map[string]any `json:"requiredArgs,omitempty"`
}

// Client talks to the identity service's GraphQL endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds an identity Client against baseURL (the configured
// userCycleUrl), e.g. "https://users.gratheon.com".
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

const validateApiTokenMutation = `mutation ValidateApiToken($token: String) {
  validateApiToken(token: $token) {
    __typename
    ... on TokenUser { id }
    ... on Error { code }
  }
}`

const validateShareTokenQuery = `query ValidateShareToken($token: String!) {
  validateShareToken(token: $token) {
    __typename
    ... on ShareTokenDetails { id name userId scopes }
    ... on Error { code }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// ValidateApiToken validates a bearer token. ok is false for any non-success
// discriminator, including a transport failure.
func (c *Client) ValidateApiToken(ctx context.Context, token string) (_ TokenUser, ok bool, err error) {
	var payload struct {
		ValidateApiToken struct {
			Typename string `json:"__typename"`
			ID       string `json:"id"`
			Code     string `json:"code"`
		} `json:"validateApiToken"`
	}

	if err := c.do(ctx, validateApiTokenMutation, map[string]any{"token": token}, &payload); err != nil {
		return TokenUser{}, false, err
	}

	if payload.ValidateApiToken.Typename != "TokenUser" || payload.ValidateApiToken.ID == "" {
		return TokenUser{}, false, nil
	}

	return TokenUser{ID: payload.ValidateApiToken.ID}, true, nil
}

// ValidateShareToken validates a share token. ok is false for any non-success
// discriminator, or when the reply omits userId — a share token that cannot
// be tied to an owning user is treated as invalid rather than anonymous.
func (c *Client) ValidateShareToken(ctx context.Context, token string) (_ ShareTokenDetails, ok bool, err error) {
	var payload struct {
		ValidateShareToken struct {
			Typename string            `json:"__typename"`
			ID       string            `json:"id"`
			Name     string            `json:"name"`
			UserID   string            `json:"userId"`
			Scopes   []ShareScopeEntry `json:"scopes"`
			Code     string            `json:"code"`
		} `json:"validateShareToken"`
	}

	if err := c.do(ctx, validateShareTokenQuery, map[string]any{"token": token}, &payload); err != nil {
		return ShareTokenDetails{}, false, err
	}

	reply := payload.ValidateShareToken
	if reply.Typename != "ShareTokenDetails" || reply.UserID == "" {
		return ShareTokenDetails{}, false, nil
	}

	return ShareTokenDetails{
		ID:     reply.ID,
		Name:   reply.Name,
		UserID: reply.UserID,
		Scopes: reply.Scopes,
	}, true, nil
}

func (c *Client) do(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to marshal identity request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build identity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("identity service returned status %d", resp.StatusCode)
	}

	var gqlResp graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return fmt.Errorf("failed to decode identity response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return fmt.Errorf("identity service error: %s", gqlResp.Errors[0].Message)
	}

	if len(gqlResp.Data) == 0 {
		return fmt.Errorf("identity service returned no data")
	}

	if err := json.Unmarshal(gqlResp.Data, out); err != nil {
		return fmt.Errorf("failed to decode identity payload: %w", err)
	}

	return nil
}
