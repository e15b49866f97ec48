package domain

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// Page задаёт окно выборки списка.
type Page struct {
	Limit  int
	Offset int
}

// Normalize подставляет значения по умолчанию и ограничивает размер страницы.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Paginate возвращает срез элементов внутри страницы.
func Paginate[T any](items []T, page Page) []T {
	page = page.Normalize()
	if page.Offset >= len(items) {
		return []T{}
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end]
}
