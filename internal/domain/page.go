package domain

// DefaultPageItems is the page size used when a list request does not set one.
const DefaultPageItems = 10

// Page is a 1-based page request.
type Page struct {
	Page  int
	Items int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Items < 1 {
		p.Items = DefaultPageItems
	}
	if p.Items > 100 {
		p.Items = 100
	}
	return p
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.Items
}

// Pagination is returned next to list results.
type Pagination struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Count int `json:"count"`
}

// Paginate describes count results split into pages of p.Items.
func Paginate(p Page, count int) Pagination {
	p = p.Normalize()
	pages := (count + p.Items - 1) / p.Items
	return Pagination{Page: p.Page, Pages: pages, Count: count}
}
