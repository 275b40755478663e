package model

// PageType classifies a single page image.
type PageType string

const (
	PageSchedule   PageType = "schedule"
	PageCompliance PageType = "compliance"
	PageDrawing    PageType = "drawing"
	PageOther      PageType = "other"
)

// PageInfo classifies one page of the input document set.
type PageInfo struct {
	PageNumber  int        `json:"page_number"`
	PageType    PageType   `json:"page_type"`
	Confidence  Confidence `json:"confidence"`
	Description string     `json:"description"`
}

// DocumentMap is the classification of every page in an evaluation case's
// input document set. It is cached per eval_id by the Iteration Store.
type DocumentMap struct {
	TotalPages int        `json:"total_pages"`
	Pages      []PageInfo `json:"pages"`
}

// SchedulePages returns page numbers classified as schedule, in ascending order.
func (d DocumentMap) SchedulePages() []int {
	return d.pagesOfType(PageSchedule)
}

// CompliancePages returns page numbers classified as compliance forms.
func (d DocumentMap) CompliancePages() []int {
	return d.pagesOfType(PageCompliance)
}

// DrawingPages returns page numbers classified as drawings.
func (d DocumentMap) DrawingPages() []int {
	return d.pagesOfType(PageDrawing)
}

func (d DocumentMap) pagesOfType(t PageType) []int {
	var out []int
	for _, p := range d.Pages {
		if p.PageType == t {
			out = append(out, p.PageNumber)
		}
	}
	return out
}
