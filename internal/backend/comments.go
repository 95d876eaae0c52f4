package backend

import (
	"context"
	"net/http"
	"strconv"
)

func (c *Client) Comments(ctx context.Context, token string, q CommentsQuery) (*CommentsPage, error) {
	query := pageQuery(q.Page, q.PerPage)
	if q.PostID > 0 {
		query.Set("post_id", strconv.Itoa(q.PostID))
	}
	if q.AuthorID > 0 {
		query.Set("author_id", strconv.Itoa(q.AuthorID))
	}
	if q.Status != "" {
		query.Set("status", q.Status)
	}

	page := &CommentsPage{}
	if err := c.DoJSON(ctx, http.MethodGet, "/comments", token, query, nil, page); err != nil {
		return nil, err
	}
	return page, nil
}

type guestCommentBody struct {
	PostID     int    `json:"post_id"`
	GuestName  string `json:"guest_name"`
	GuestEmail string `json:"guest_email"`
	Content    string `json:"content"`
}

type userCommentBody struct {
	PostID  int    `json:"post_id"`
	Content string `json:"content"`
}

// CreateComment posts a guest comment when token is empty, otherwise a
// comment of the token's user (content only).
func (c *Client) CreateComment(ctx context.Context, token string, in CommentInput) (*CommentResult, error) {
	var body interface{}
	if token == "" {
		body = guestCommentBody{
			PostID:     in.PostID,
			GuestName:  in.GuestName,
			GuestEmail: in.GuestEmail,
			Content:    in.Content,
		}
	} else {
		body = userCommentBody{
			PostID:  in.PostID,
			Content: in.Content,
		}
	}

	result := &CommentResult{}
	if err := c.DoJSON(ctx, http.MethodPost, "/comments", token, nil, body, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) ModerateComment(ctx context.Context, token string, id int, action ModerationAction) (*CommentResult, error) {
	body := struct {
		Action ModerationAction `json:"action"`
	}{Action: action}

	result := &CommentResult{}
	path := "/comments/" + strconv.Itoa(id) + "/moderate"
	if err := c.DoJSON(ctx, http.MethodPatch, path, token, nil, body, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) UpdateComment(ctx context.Context, token string, id int, content string) (*CommentResult, error) {
	body := struct {
		Content string `json:"content"`
	}{Content: content}

	result := &CommentResult{}
	if err := c.DoJSON(ctx, http.MethodPut, "/comments/"+strconv.Itoa(id), token, nil, body, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) DeleteComment(ctx context.Context, token string, id int) error {
	return c.DoJSON(ctx, http.MethodDelete, "/comments/"+strconv.Itoa(id), token, nil, nil, nil)
}
