// Package composer merges subgraph SDLs into a single supergraph SDL using
// the federation composition engine.
package composer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gratheon/graphql-gateway/federation/graph"
	"github.com/gratheon/graphql-gateway/internal/registryclient"
)

// CompositionFailure carries the concatenated diagnostic messages produced
// when the composition engine reports errors, or reports success with no
// SDL output.
type CompositionFailure struct {
	Diagnostics []string
}

func (f *CompositionFailure) Error() string {
	return fmt.Sprintf("composition failed: %s", strings.Join(f.Diagnostics, "; "))
}

// Result is the composer's output: the textual supergraph SDL plus the
// built SuperGraphV2, which the supergraph manager reuses to avoid
// re-parsing every subgraph SDL a second time when building the planner and
// executor.
type Result struct {
	SDL        string
	SuperGraph *graph.SuperGraphV2
}

// Compose validates and merges the given descriptors into a supergraph.
// It is pure and side-effect-free aside from returning diagnostics; callers
// are expected to have already dropped descriptors with unparseable SDL.
func Compose(descriptors []registryclient.Descriptor) (*Result, error) {
	if len(descriptors) == 0 {
		return nil, &CompositionFailure{Diagnostics: []string{"no subgraph descriptors to compose"}}
	}

	sorted := make([]registryclient.Descriptor, len(descriptors))
	copy(sorted, descriptors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	subGraphs := make([]*graph.SubGraphV2, 0, len(sorted))
	var diagnostics []string
	sdlParts := make([]string, 0, len(sorted))

	for _, d := range sorted {
		sg, err := graph.NewSubGraphV2(d.Name, []byte(d.TypeDefsText), d.URL)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Sprintf("subgraph %q: %v", d.Name, err))
			continue
		}
		subGraphs = append(subGraphs, sg)
		sdlParts = append(sdlParts, strings.TrimSpace(d.TypeDefsText))
	}

	if len(diagnostics) > 0 {
		return nil, &CompositionFailure{Diagnostics: diagnostics}
	}

	superGraph, err := graph.NewSuperGraphV2(subGraphs)
	if err != nil {
		return nil, &CompositionFailure{Diagnostics: []string{err.Error()}}
	}

	sdl := strings.Join(sdlParts, "\n\n")
	if sdl == "" {
		return nil, &CompositionFailure{Diagnostics: []string{"composition succeeded with no SDL output"}}
	}

	return &Result{SDL: sdl, SuperGraph: superGraph}, nil
}
