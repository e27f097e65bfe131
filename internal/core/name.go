package core

import "strings"

// FacetSeparator joins the individual cells of a row into a composed expense
// name, and splits it back apart for display.
const FacetSeparator = " - "

// Placeholder labels shown when a composed name carries fewer facets than the
// display layout expects. They are presentational only and never written back
// into a record.
const (
	PlaceholderCategory    = "(category)"
	PlaceholderSubCategory = "(sub-category)"
	PlaceholderPhase       = "(phase)"
	PlaceholderDetails     = "(details)"
)

// NameFacets is the presentational decomposition of a composed expense name.
// Original always holds the full name verbatim.
type NameFacets struct {
	Category    string
	SubCategory string
	Phase       string
	Details     string
	Original    string
}

// ComposeName joins non-empty parts with the facet separator. Empty or
// whitespace-only parts are skipped so the separator never leads, trails, or
// doubles up.
func ComposeName(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, FacetSeparator)
}

// DecomposeName splits a composed name into display facets. The first three
// segments become category, sub-category and phase; everything after is
// re-joined as details. Missing segments are substituted with placeholder
// labels rather than left blank. Decomposition is idempotent: re-composing
// the non-placeholder facets and decomposing again yields the same facets.
func DecomposeName(name string) NameFacets {
	var segments []string
	for _, seg := range strings.Split(name, FacetSeparator) {
		if s := strings.TrimSpace(seg); s != "" {
			segments = append(segments, s)
		}
	}

	facets := NameFacets{
		Category:    PlaceholderCategory,
		SubCategory: PlaceholderSubCategory,
		Phase:       PlaceholderPhase,
		Details:     PlaceholderDetails,
		Original:    name,
	}
	if len(segments) > 0 {
		facets.Category = segments[0]
	}
	if len(segments) > 1 {
		facets.SubCategory = segments[1]
	}
	if len(segments) > 2 {
		facets.Phase = segments[2]
	}
	if len(segments) > 3 {
		facets.Details = strings.Join(segments[3:], FacetSeparator)
	}
	return facets
}
