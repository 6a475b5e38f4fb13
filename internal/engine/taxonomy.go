package engine

import (
	"pressgate/internal/taxonomy"
)

// HierarchyTerm is one category in depth-first order with its full
// ancestry path.
type HierarchyTerm struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Slug   string `json:"slug,omitempty"`
	Parent int64  `json:"parent,omitempty"`
	Path   string `json:"path"`
}

type HierarchyReport struct {
	Valid    bool                      `json:"valid"`
	Errors   []taxonomy.HierarchyIssue `json:"errors,omitempty"`
	Warnings []taxonomy.HierarchyIssue `json:"warnings,omitempty"`
	Terms    []HierarchyTerm           `json:"terms"`
}

// CheckHierarchy validates a full category set against the configured
// depth limit and returns the set sorted depth-first with paths. Pure
// computation, no remote calls.
func (e Engine) CheckHierarchy(cats []taxonomy.Category, maxDepth int) HierarchyReport {
	if maxDepth <= 0 && e.Config != nil {
		maxDepth = e.Config.Taxonomy.MaxDepth
	}
	res := taxonomy.ValidateHierarchy(cats, maxDepth)
	report := HierarchyReport{
		Valid:    res.OK(),
		Errors:   res.Errors,
		Warnings: res.Warnings,
	}
	for _, c := range taxonomy.SortByHierarchy(cats) {
		report.Terms = append(report.Terms, HierarchyTerm{
			ID:     c.ID,
			Name:   c.Name,
			Slug:   c.Slug,
			Parent: c.Parent,
			Path:   taxonomy.BuildPath(c, cats),
		})
	}
	return report
}
