package repository

const (
	defaultPageSize = 200
	maxPageSize     = 5000
)

// Page is a clamped LIMIT/OFFSET window.
type Page struct {
	Limit  int
	Offset int
}

// NewPage applies the default size to a non-positive limit, caps large ones
// and floors the offset at zero.
func NewPage(limit, offset int) Page {
	switch {
	case limit <= 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}
