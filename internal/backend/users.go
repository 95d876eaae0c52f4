package backend

import (
	"context"
	"net/http"
	"strconv"
)

func (c *Client) Users(ctx context.Context, token string, page, perPage int) (*UsersPage, error) {
	users := &UsersPage{}
	if err := c.DoJSON(ctx, http.MethodGet, "/users", token, pageQuery(page, perPage), nil, users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) DeleteUser(ctx context.Context, token string, id int) (string, error) {
	resp := &messageResponse{}
	if err := c.DoJSON(ctx, http.MethodDelete, "/users/"+strconv.Itoa(id), token, nil, nil, resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// RSS returns the feed XML untouched.
func (c *Client) RSS(ctx context.Context) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/rss", "", nil, nil, "")
}
