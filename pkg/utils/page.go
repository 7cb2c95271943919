package utils

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// Page is a zero-based page request.
type Page struct {
	Number int `json:"page"`
	Size   int `json:"size"`
}

// Normalize clamps the page into a usable range.
func (p Page) Normalize() Page {
	if p.Number < 0 {
		p.Number = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) Offset() int { return p.Number * p.Size }

// Window returns the [start, end) bounds of this page over total items.
func (p Page) Window(total int) (int, int) {
	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.Size
	if end > total {
		end = total
	}
	return start, end
}

// PageResult is a page of items plus the total match count.
type PageResult[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
}

func NewPageResult[T any](items []T, total int, p Page) PageResult[T] {
	if items == nil {
		items = []T{}
	}
	return PageResult[T]{Items: items, Total: total, Page: p.Number, Size: p.Size}
}
