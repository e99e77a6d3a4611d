package feature

import (
	"fmt"

	"github.com/heimdalr/dag"

	"github.com/nlsantos/devc/internal/config"
)

// Request is a single feature a config (or CLI-supplied additional
// features) asks to have installed, carrying its own option overrides.
type Request struct {
	ID      string
	Options config.FeatureOptions
}

// vertexID strips a trailing ":tag" from a feature id the same way
// the teacher's install-graph builder does, so "ghcr.io/x/node:18"
// and "ghcr.io/x/node:20" collapse to one vertex if both were
// requested (Order keeps the first request for a vertex id; later
// requests with the same vertex id are not added).
func vertexID(id string) string {
	for i := len(id) - 1; i >= 0; i-- {
		switch id[i] {
		case ':':
			return id[:i]
		case '/':
			return id
		}
	}
	return id
}

// Order computes the topological install order over requested
// features using installsAfter (soft: an edge only when both ends are
// present in the request, breaking ties by preserving requested
// order) and dependsOn (hard: a missing dependency is a fatal error).
// If overrideOrder is non-empty, it wins as a total order, with any
// requested feature absent from it appended in its resolved order.
func Order(requested []Request, metadata map[string]*Metadata, overrideOrder []string) ([]string, error) {
	d := dag.NewDAG()
	index := map[string]int{}
	for i, r := range requested {
		id := vertexID(r.ID)
		if _, exists := index[id]; exists {
			continue
		}
		index[id] = i
		if err := d.AddVertexByID(id, r.ID); err != nil {
			return nil, fmt.Errorf("feature: adding vertex %s: %w", id, err)
		}
	}

	for _, r := range requested {
		id := vertexID(r.ID)
		md := metadata[r.ID]
		if md == nil {
			continue
		}
		for dep := range md.DependsOn {
			depID := vertexID(dep)
			if _, ok := index[depID]; !ok {
				return nil, fmt.Errorf("feature: %s depends on %s, which was not requested", r.ID, dep)
			}
			if err := d.AddEdge(depID, id); err != nil {
				return nil, fmt.Errorf("feature: dependsOn cycle or conflict between %s and %s: %w", depID, id, err)
			}
		}
		for _, after := range md.InstallsAfter {
			afterID := vertexID(after)
			if _, ok := index[afterID]; !ok {
				continue // soft dependency on a feature that wasn't requested: ignored
			}
			if err := d.AddEdge(afterID, id); err != nil {
				return nil, fmt.Errorf("feature: installsAfter cycle between %s and %s: %w", afterID, id, err)
			}
		}
	}

	order, err := topoSortStable(d, index)
	if err != nil {
		return nil, err
	}

	if len(overrideOrder) == 0 {
		return order, nil
	}
	return applyOverrideOrder(order, overrideOrder, index), nil
}

// topoSortStable performs Kahn's algorithm, picking among ready
// vertices by their original requested index so ties preserve
// request order exactly as spec.md §4.8 requires.
func topoSortStable(d *dag.DAG, index map[string]int) ([]string, error) {
	remaining := map[string]bool{}
	for id := range index {
		remaining[id] = true
	}

	result := make([]string, 0, len(remaining))
	for len(remaining) > 0 {
		roots := d.GetRoots()
		var ready []string
		for id := range roots {
			if remaining[id] {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			return nil, fmt.Errorf("feature: dependency cycle detected among remaining features")
		}

		// stable pick: lowest original request index first
		best := ready[0]
		for _, id := range ready[1:] {
			if index[id] < index[best] {
				best = id
			}
		}

		result = append(result, best)
		delete(remaining, best)
		if err := d.DeleteVertex(best); err != nil {
			return nil, fmt.Errorf("feature: removing resolved vertex %s: %w", best, err)
		}
	}
	return result, nil
}

// applyOverrideOrder makes overrideOrder the total order: entries not
// present in it are appended at the end in their resolved order.
func applyOverrideOrder(resolved, overrideOrder []string, index map[string]int) []string {
	inOverride := map[string]bool{}
	out := make([]string, 0, len(resolved))
	for _, id := range overrideOrder {
		v := vertexID(id)
		if _, ok := index[v]; !ok {
			continue
		}
		inOverride[v] = true
		out = append(out, v)
	}
	for _, id := range resolved {
		if !inOverride[id] {
			out = append(out, id)
		}
	}
	return out
}

// MergeOptions overlays config-supplied option values over a
// feature's declared defaults; when additionalFeatures is supplied
// with preferCLI=true, CLI entries win on collisions.
func MergeOptions(defaults map[string]Option, configured config.FeatureOptions, additional config.FeatureOptions, preferCLI bool) config.FeatureOptions {
	merged := config.FeatureOptions{}
	for name, opt := range defaults {
		merged[name] = opt.Default
	}
	for k, v := range configured {
		merged[k] = v
	}
	if preferCLI {
		for k, v := range additional {
			merged[k] = v
		}
	} else {
		for k, v := range additional {
			if _, exists := configured[k]; !exists {
				merged[k] = v
			}
		}
	}
	return merged
}
