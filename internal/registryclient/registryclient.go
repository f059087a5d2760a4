// Package registryclient fetches subgraph descriptors from the external
// schema registry service.
package registryclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
)

// Descriptor is a single subgraph entry as produced by the registry client.
// Immutable once produced; a descriptor with empty/unparseable TypeDefsText
// is dropped before composition by the caller.
type Descriptor struct {
	Name         string
	URL          string // rewritten to http://<url>; empty if the registry omitted it
	Version      string
	TypeDefsText string
	TypeDefsAST  *ast.Document // nil if TypeDefsText failed to parse
}

type registryEntry struct {
	Name             string `json:"name"`
	URL              string `json:"url"`
	Version          string `json:"version"`
	TypeDefs         string `json:"type_defs"`
	TypeDefsOriginal string `json:"type_defs_original"`
}

type registryEnvelope struct {
	Data []registryEntry `json:"data"`
}

// Client fetches descriptors from a schema registry's /schema/latest
// endpoint.
type Client struct {
	registryURL string
	httpClient  *http.Client
	logger      *slog.Logger
}

// New creates a registry Client for the given base registry URL
// (e.g. "https://registry.internal").
func New(registryURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		registryURL: strings.TrimRight(registryURL, "/"),
		httpClient:  httpClient,
		logger:      slog.Default().With("component", "registryclient"),
	}
}

// Fetch issues GET <registryURL>/schema/latest and decodes the descriptor
// envelope. Network or decode failure returns an empty slice and sawError
// true; it never returns an error past this boundary, leaving the caller
// free to keep serving its last-known-good supergraph on any fetch failure.
func (c *Client) Fetch(ctx context.Context) (descriptors []Descriptor, sawError bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.registryURL+"/schema/latest", nil)
	if err != nil {
		c.logger.Error("failed to build registry request", "error", err)
		return nil, true
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("registry unavailable", "error", err)
		return nil, true
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("registry returned non-200 status", "status", resp.StatusCode)
		return nil, true
	}

	var envelope registryEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		c.logger.Warn("failed to decode registry response", "error", err)
		return nil, true
	}

	descriptors = make([]Descriptor, 0, len(envelope.Data))
	for _, entry := range envelope.Data {
		d := Descriptor{
			Name:         entry.Name,
			Version:      entry.Version,
			TypeDefsText: entry.TypeDefs,
		}

		if entry.URL == "" {
			c.logger.Warn("registry entry missing url", "name", entry.Name)
		} else {
			d.URL = rewriteHost(entry.URL)
		}

		if strings.TrimSpace(entry.TypeDefs) == "" {
			c.logger.Warn("registry entry has empty type_defs, dropping", "name", entry.Name)
			continue
		}

		doc, err := parseTypeDefs(entry.TypeDefs)
		if err != nil {
			c.logger.Warn("failed to parse subgraph type_defs, dropping", "name", entry.Name, "error", err)
			continue
		}
		d.TypeDefsAST = doc

		descriptors = append(descriptors, d)
	}

	return descriptors, false
}

func parseTypeDefs(src string) (*ast.Document, error) {
	l := lexer.New(src)
	p := parser.New(l)
	doc := p.ParseDocument()
	if len(p.Errors()) > 0 {
		return nil, fmt.Errorf("parse errors: %v", p.Errors())
	}
	return doc, nil
}

// rewriteHost rewrites a bare "host:port" or "host" service URL into the
// http:// form the dispatcher expects, leaving already-schemed URLs alone.
func rewriteHost(url string) string {
	if strings.Contains(url, "://") {
		return url
	}
	return "http://" + url
}
