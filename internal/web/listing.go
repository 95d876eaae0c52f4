package web

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/2beens/blogportal/internal/backend"
)

const (
	defaultPerPage = 10
	// consoleFetchSize is how many items a console list fetches from the API
	// before filtering and paging locally
	consoleFetchSize = 50
)

type PageInfo struct {
	Page    int
	Pages   int
	Total   int
	PerPage int
	HasPrev bool
	HasNext bool
	Prev    int
	Next    int
}

// Paginate returns the page-th (1 based) slice of perPage items. Out of range
// pages are clamped.
func Paginate[T any](items []T, page, perPage int) ([]T, PageInfo) {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	total := len(items)
	pages := (total + perPage - 1) / perPage
	if pages == 0 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	start := (page - 1) * perPage
	end := start + perPage
	if end > total {
		end = total
	}

	info := PageInfo{
		Page:    page,
		Pages:   pages,
		Total:   total,
		PerPage: perPage,
		HasPrev: page > 1,
		HasNext: page < pages,
		Prev:    page - 1,
		Next:    page + 1,
	}
	return items[start:end], info
}

// ServerPageInfo adapts the API pagination of a list.
func ServerPageInfo(p backend.Pagination, perPage int) PageInfo {
	page := p.CurrentPage
	if page < 1 {
		page = 1
	}
	return PageInfo{
		Page:    page,
		Pages:   p.Pages,
		Total:   p.Total,
		PerPage: perPage,
		HasPrev: p.HasPrev,
		HasNext: p.HasNext,
		Prev:    page - 1,
		Next:    page + 1,
	}
}

func Filter[T any](items []T, keep func(T) bool) []T {
	kept := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			kept = append(kept, item)
		}
	}
	return kept
}

// ListQuery is the console list state carried in the URL query.
type ListQuery struct {
	Page   int
	Status string
	Search string
}

func ParseListQuery(q url.Values) ListQuery {
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	return ListQuery{
		Page:   page,
		Status: strings.TrimSpace(q.Get("status")),
		Search: strings.TrimSpace(q.Get("q")),
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// FilterPosts keeps posts matching status and search (title or excerpt).
// authorID > 0 keeps only that author's posts.
func FilterPosts(posts []backend.Post, lq ListQuery) []backend.Post {
	return Filter(posts, func(p backend.Post) bool {
		if lq.Status != "" && p.Status != lq.Status {
			return false
		}
		if lq.Search != "" && !containsFold(p.Title, lq.Search) && !containsFold(p.Excerpt, lq.Search) {
			return false
		}
		return true
	})
}

func FilterComments(comments []backend.Comment, lq ListQuery) []backend.Comment {
	return Filter(comments, func(c backend.Comment) bool {
		if lq.Status != "" && c.Status != lq.Status {
			return false
		}
		if lq.Search != "" && !containsFold(c.Content, lq.Search) && !containsFold(c.AuthorName, lq.Search) {
			return false
		}
		return true
	})
}

func FilterUsers(users []backend.User, lq ListQuery) []backend.User {
	return Filter(users, func(u backend.User) bool {
		return lq.Search == "" || containsFold(u.Username, lq.Search) || containsFold(u.Email, lq.Search)
	})
}

// PageURL builds the link to another page of the same list, keeping the
// filters.
func (lq ListQuery) PageURL(path string, page int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if lq.Status != "" {
		q.Set("status", lq.Status)
	}
	if lq.Search != "" {
		q.Set("q", lq.Search)
	}
	return path + "?" + q.Encode()
}
