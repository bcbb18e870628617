package orchestrator

import (
	"sort"

	"ista/internal/catalog"
	dErrors "ista/pkg/domain-errors"
)

// orderSpecs returns the requested specs in dependency order: parents
// before the children that reference them. Relationships to datasets
// outside the request carry no edge; the resolver reports those as
// missing parents if a child actually draws on them. The order is
// deterministic: ties break on dataset name.
func orderSpecs(specs []*catalog.DatasetSpec) ([]*catalog.DatasetSpec, error) {
	byName := make(map[string]*catalog.DatasetSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}

	indegree := make(map[string]int, len(specs))
	children := make(map[string][]string, len(specs))
	for _, s := range specs {
		indegree[s.Name] += 0
		for _, rel := range s.Relationships {
			if _, requested := byName[rel.Dataset]; !requested {
				continue
			}
			children[rel.Dataset] = append(children[rel.Dataset], s.Name)
			indegree[s.Name]++
		}
	}

	ready := []string{}
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	ordered := make([]*catalog.DatasetSpec, 0, len(specs))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, byName[name])

		next := []string{}
		for _, child := range children[name] {
			indegree[child]--
			if indegree[child] == 0 {
				next = append(next, child)
			}
		}
		sort.Strings(next)
		ready = append(ready, next...)
	}

	if len(ordered) != len(specs) {
		remaining := []string{}
		for name, deg := range indegree {
			if deg > 0 {
				remaining = append(remaining, name)
			}
		}
		sort.Strings(remaining)
		return nil, dErrors.Newf(dErrors.CodeCyclicRelationship,
			"relationship cycle involving datasets %v", remaining)
	}
	return ordered, nil
}
