package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/2beens/blogportal/internal/backend"
	"github.com/2beens/blogportal/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_PostContentSanitized(t *testing.T) {
	v, err := loadViews()
	require.NoError(t, err)

	post := &backend.Post{
		ID:    5,
		Title: "Sneaky",
		Slug:  "sneaky",
		Content: `<p>Hello <strong>bold</strong> <em>it</em></p>` +
			`<script>alert(1)</script>` +
			`<img src="/img/a.png" onerror="alert(2)">` +
			`<a href="javascript:alert(3)">click</a>`,
	}

	rr := httptest.NewRecorder()
	v.render(rr, http.StatusOK, "post.html", &pageData{
		Title:  post.Title,
		Header: NewHeader(session.Snapshot{State: session.StateAnonymous}, "/rss"),
		Data:   postData{Post: post},
	})

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.NotContains(t, body, "<script>")
	assert.NotContains(t, body, "alert(1)")
	assert.NotContains(t, body, "onerror")
	assert.NotContains(t, body, "javascript:")
	assert.Contains(t, body, "<strong>bold</strong>")
	assert.Contains(t, body, "<em>it</em>")
	assert.Contains(t, body, `src="/img/a.png"`)
}
