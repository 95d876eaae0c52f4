package backend

import (
	"context"
	"net/http"
	"strconv"
)

// Scope selects the console endpoints of a zone. Console endpoints see drafts;
// the user scope only covers the caller's own content.
type Scope string

const (
	ScopeUser  Scope = "/user"
	ScopeAdmin Scope = "/admin"
)

type UserDashboardStats struct {
	TotalPosts    int `json:"total_posts"`
	TotalComments int `json:"total_comments"`
}

type AdminDashboardStats struct {
	TotalPosts      int `json:"total_posts"`
	PendingComments int `json:"pending_comments"`
	TotalUsers      int `json:"total_users"`
}

// ConsolePosts lists posts of any status within scope.
func (c *Client) ConsolePosts(ctx context.Context, token string, scope Scope, q PostsQuery) (*PostsPage, error) {
	query := pageQuery(q.Page, q.PerPage)
	if q.Status != "" {
		query.Set("status", q.Status)
	}

	page := &PostsPage{}
	if err := c.DoJSON(ctx, http.MethodGet, string(scope)+"/posts", token, query, nil, page); err != nil {
		return nil, err
	}
	return page, nil
}

// ConsolePost fetches a post by id within scope, drafts included.
func (c *Client) ConsolePost(ctx context.Context, token string, scope Scope, id int) (*Post, error) {
	post := &Post{}
	if err := c.DoJSON(ctx, http.MethodGet, string(scope)+"/posts/"+strconv.Itoa(id), token, nil, nil, post); err != nil {
		return nil, err
	}
	return post, nil
}

// MyComments lists the comments written by the token's user.
func (c *Client) MyComments(ctx context.Context, token string, page, perPage int) (*CommentsPage, error) {
	comments := &CommentsPage{}
	if err := c.DoJSON(ctx, http.MethodGet, "/comments/my", token, pageQuery(page, perPage), nil, comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (c *Client) UserDashboard(ctx context.Context, token string) (*UserDashboardStats, error) {
	resp := &struct {
		Stats UserDashboardStats `json:"stats"`
	}{}
	if err := c.DoJSON(ctx, http.MethodGet, "/user/dashboard", token, nil, nil, resp); err != nil {
		return nil, err
	}
	return &resp.Stats, nil
}

func (c *Client) AdminDashboard(ctx context.Context, token string) (*AdminDashboardStats, error) {
	resp := &struct {
		Stats AdminDashboardStats `json:"stats"`
	}{}
	if err := c.DoJSON(ctx, http.MethodGet, "/admin/dashboard", token, nil, nil, resp); err != nil {
		return nil, err
	}
	return &resp.Stats, nil
}
