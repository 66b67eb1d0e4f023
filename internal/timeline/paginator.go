package timeline

// Paginator tracks how many timeline entries are shown. It is not safe for
// concurrent use; the Store guards it.
type Paginator struct {
	pageSize  int
	increment int
	count     int
}

// NewPaginator starts with one page visible.
func NewPaginator(pageSize, increment int) *Paginator {
	if pageSize <= 0 {
		pageSize = 1
	}
	if increment <= 0 {
		increment = pageSize
	}
	return &Paginator{pageSize: pageSize, increment: increment, count: pageSize}
}

// ShowMore grows the window by one increment, capped at total.
func (p *Paginator) ShowMore(total int) int {
	p.count = min(p.count+p.increment, total)
	return p.Window(total)
}

// Collapse shrinks the window back to one page.
func (p *Paginator) Collapse() {
	p.count = p.pageSize
}

// Reset runs when a new post is added at the top.
func (p *Paginator) Reset() {
	p.count = p.pageSize
}

// Widen keeps at least one page visible after a quote-repost lands.
func (p *Paginator) Widen() {
	p.count = max(p.count, p.pageSize)
}

// Window returns the number of entries to render.
func (p *Paginator) Window(total int) int {
	return max(0, min(p.count, total))
}

// HasMore reports whether entries are hidden.
func (p *Paginator) HasMore(total int) bool {
	return total > p.count
}

// CanCollapse reports whether more than one page is shown.
func (p *Paginator) CanCollapse(total int) bool {
	return p.count > p.pageSize && total > p.pageSize
}
