// Package router selects the per-domain page subset that each domain
// extractor should see, per the deterministic policy in 4.D.
package router

import (
	"sort"

	"basegraph.app/t24spec/internal/model"
)

// MaxPagesPerWorker bounds the number of page paths routed to any one
// extractor; excess pages are truncated from the tail and a note recorded.
const MaxPagesPerWorker = 20

// Domain names the five extraction domains the router understands.
type Domain string

const (
	DomainProject Domain = "project"
	DomainZones   Domain = "zones"
	DomainWindows Domain = "windows"
	DomainHVAC    Domain = "hvac"
	DomainDHW     Domain = "dhw"
)

// Selection is a routed page subset, bounded to MaxPagesPerWorker, plus an
// optional truncation note.
type Selection struct {
	PageNumbers []int
	Note        string
}

// Route selects the page numbers domain's extractor should see from doc, in
// ascending order, applying the domain's policy and the max-pages bound.
func Route(doc model.DocumentMap, domain Domain) Selection {
	var pages []int

	switch domain {
	case DomainProject, DomainHVAC, DomainDHW:
		pages = union(doc.SchedulePages(), doc.CompliancePages())
	case DomainZones:
		pages = union(doc.SchedulePages(), doc.CompliancePages(), doc.DrawingPages())
	case DomainWindows:
		drawings := doc.DrawingPages()
		if len(drawings) > 5 {
			drawings = drawings[:5]
		}
		pages = union(doc.SchedulePages(), doc.CompliancePages(), drawings)
	default:
		pages = nil
	}

	sort.Ints(pages)

	if len(pages) > MaxPagesPerWorker {
		return Selection{
			PageNumbers: pages[:MaxPagesPerWorker],
			Note:        "page set truncated to the first 20 pages in ascending order",
		}
	}

	return Selection{PageNumbers: pages}
}

func union(sets ...[]int) []int {
	seen := map[int]bool{}
	var out []int
	for _, set := range sets {
		for _, p := range set {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
