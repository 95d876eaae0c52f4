package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
)

func (c *Client) Posts(ctx context.Context, token string, q PostsQuery) (*PostsPage, error) {
	query := pageQuery(q.Page, q.PerPage)
	if q.Status != "" {
		query.Set("status", q.Status)
	}
	if q.Tag != "" {
		query.Set("tag", q.Tag)
	}

	page := &PostsPage{}
	if err := c.DoJSON(ctx, http.MethodGet, "/posts", token, query, nil, page); err != nil {
		return nil, err
	}
	return page, nil
}

// Post fetches a single post by id or slug.
func (c *Client) Post(ctx context.Context, token, idOrSlug string) (*Post, error) {
	post := &Post{}
	if err := c.DoJSON(ctx, http.MethodGet, "/posts/"+url.PathEscape(idOrSlug), token, nil, nil, post); err != nil {
		return nil, err
	}
	return post, nil
}

type postResponse struct {
	Message string `json:"message"`
	Post    *Post  `json:"post"`
}

func (c *Client) CreatePost(ctx context.Context, token string, in PostInput) (*Post, error) {
	resp := &postResponse{}
	if err := c.DoJSON(ctx, http.MethodPost, "/posts", token, nil, in, resp); err != nil {
		return nil, err
	}
	return resp.Post, nil
}

func (c *Client) UpdatePost(ctx context.Context, token string, id int, in PostInput) (*Post, error) {
	resp := &postResponse{}
	if err := c.DoJSON(ctx, http.MethodPut, "/posts/"+strconv.Itoa(id), token, nil, in, resp); err != nil {
		return nil, err
	}
	return resp.Post, nil
}

func (c *Client) DeletePost(ctx context.Context, token string, id int) error {
	return c.DoJSON(ctx, http.MethodDelete, "/posts/"+strconv.Itoa(id), token, nil, nil, nil)
}

func (c *Client) Tags(ctx context.Context) ([]Tag, error) {
	resp := &struct {
		Tags []Tag `json:"tags"`
	}{}
	if err := c.DoJSON(ctx, http.MethodGet, "/posts/tags", "", nil, nil, resp); err != nil {
		return nil, err
	}
	return resp.Tags, nil
}

// UploadImage sends a featured image as multipart field "image" and returns
// the URL the API stored it under.
func (c *Client) UploadImage(ctx context.Context, token, filename string, image io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return "", fmt.Errorf("copy image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/posts/image", token, nil, &buf, mw.FormDataContentType())
	if err != nil {
		return "", err
	}

	resp := &struct {
		URL      string `json:"url"`
		ImageURL string `json:"image_url"`
	}{}
	if err := json.Unmarshal(respBody, resp); err != nil {
		return "", &RequestError{Status: http.StatusOK, Message: FallbackMessage}
	}
	if resp.URL != "" {
		return resp.URL, nil
	}
	if resp.ImageURL != "" {
		return resp.ImageURL, nil
	}
	return "", &RequestError{Status: http.StatusOK, Message: FallbackMessage}
}
