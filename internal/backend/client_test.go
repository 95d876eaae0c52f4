package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/2beens/blogportal/internal/telemetry/metrics"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, router http.Handler) (*Client, *metrics.Manager) {
	t.Helper()
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	mm := metrics.NewTestManager()
	return NewClient(server.URL+"/", 2*time.Second, mm), mm
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestClient_RequestErrors(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/posts/with-error", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]string{"error": "Post not found"})
	})
	r.HandleFunc("/posts/with-message", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]string{"message": "Title is required"})
	})
	r.HandleFunc("/posts/plain", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	r.HandleFunc("/posts/broken", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})
	client, _ := newTestClient(t, r)
	ctx := context.Background()

	tests := []struct {
		slug        string
		wantStatus  int
		wantMessage string
	}{
		{slug: "with-error", wantStatus: http.StatusNotFound, wantMessage: "Post not found"},
		{slug: "with-message", wantStatus: http.StatusBadRequest, wantMessage: "Title is required"},
		{slug: "plain", wantStatus: http.StatusInternalServerError, wantMessage: FallbackMessage},
		{slug: "broken", wantStatus: http.StatusOK, wantMessage: FallbackMessage},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			post, err := client.Post(ctx, "", tt.slug)
			require.Error(t, err)
			assert.Nil(t, post)

			var reqErr *RequestError
			require.True(t, errors.As(err, &reqErr))
			assert.Equal(t, tt.wantStatus, reqErr.Status)
			assert.Equal(t, tt.wantMessage, err.Error())
			assert.Equal(t, tt.wantStatus, StatusOf(err))
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client := NewClient(server.URL, time.Second, nil)
	_, err := client.Posts(context.Background(), "", PostsQuery{})
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, 0, StatusOf(err))
}

func TestClient_Posts(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/posts", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "2", req.URL.Query().Get("page"))
		assert.Equal(t, "5", req.URL.Query().Get("per_page"))
		assert.Equal(t, "go", req.URL.Query().Get("tag"))
		assert.Empty(t, req.Header.Get("Authorization"))
		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"posts": []map[string]interface{}{
				{"id": 1, "title": "First", "slug": "first", "tags": []map[string]interface{}{{"id": 1, "name": "Go", "slug": "go"}}},
				{"id": 2, "title": "Second", "slug": "second"},
			},
			"total":        7,
			"pages":        2,
			"current_page": 2,
			"has_prev":     true,
		})
	}).Methods(http.MethodGet)
	client, mm := newTestClient(t, r)

	page, err := client.Posts(context.Background(), "", PostsQuery{Page: 2, PerPage: 5, Tag: "go"})
	require.NoError(t, err)
	require.Len(t, page.Posts, 2)
	assert.Equal(t, "first", page.Posts[0].Slug)
	assert.Equal(t, "Go", page.Posts[0].Tags[0].Name)
	assert.Equal(t, 7, page.Total)
	assert.Equal(t, 2, page.CurrentPage)
	assert.True(t, page.HasPrev)
	assert.False(t, page.HasNext)

	assert.Equal(t, 1, testutil.CollectAndCount(mm.HistogramBackendDuration))
}

func TestClient_PostWrites(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/posts", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		in := PostInput{}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&in))
		assert.Equal(t, "Hello", in.Title)
		assert.Equal(t, []string{"go", "web"}, in.Tags)
		writeJSON(t, w, http.StatusCreated, map[string]interface{}{
			"message": "Post created",
			"post":    map[string]interface{}{"id": 9, "title": in.Title, "slug": "hello", "status": in.Status},
		})
	}).Methods(http.MethodPost)
	r.HandleFunc("/posts/{id}", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "9", mux.Vars(req)["id"])
		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"post": map[string]interface{}{"id": 9, "title": "Hello again", "status": PostStatusPublished},
		})
	}).Methods(http.MethodPut)
	r.HandleFunc("/posts/{id}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]string{"message": "Post deleted"})
	}).Methods(http.MethodDelete)
	client, _ := newTestClient(t, r)
	ctx := context.Background()

	created, err := client.CreatePost(ctx, "tok", PostInput{
		Title:   "Hello",
		Content: "<p>hi</p>",
		Tags:    []string{"go", "web"},
		Status:  PostStatusDraft,
	})
	require.NoError(t, err)
	assert.Equal(t, 9, created.ID)
	assert.Equal(t, PostStatusDraft, created.Status)

	updated, err := client.UpdatePost(ctx, "tok", 9, PostInput{Title: "Hello again", Content: "x", Status: PostStatusPublished})
	require.NoError(t, err)
	assert.Equal(t, "Hello again", updated.Title)

	assert.NoError(t, client.DeletePost(ctx, "tok", 9))
}

func TestClient_UploadImage(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/posts/image", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
		file, header, err := req.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		content, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "cover.png", header.Filename)
		assert.Equal(t, "PNGDATA", string(content))
		writeJSON(t, w, http.StatusOK, map[string]string{"url": "/uploads/posts/cover.png"})
	}).Methods(http.MethodPost)
	client, _ := newTestClient(t, r)

	imageURL, err := client.UploadImage(context.Background(), "tok", "cover.png", strings.NewReader("PNGDATA"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/posts/cover.png", imageURL)
}

func TestClient_Comments(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/comments", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "3", req.URL.Query().Get("post_id"))
		assert.Equal(t, CommentStatusApproved, req.URL.Query().Get("status"))
		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"comments": []map[string]interface{}{
				{"id": 1, "post_id": 3, "author_name": "guest", "is_guest": true, "content": "nice", "status": "approved"},
				{"id": 2, "post_id": 3, "author_id": 4, "author_name": "serj", "content": "thanks", "status": "approved"},
			},
			"total": 2,
		})
	}).Methods(http.MethodGet)
	r.HandleFunc("/comments", func(w http.ResponseWriter, req *http.Request) {
		body := map[string]interface{}{}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		if req.Header.Get("Authorization") == "" {
			assert.Equal(t, "Guest", body["guest_name"])
			assert.Equal(t, "guest@example.com", body["guest_email"])
			writeJSON(t, w, http.StatusCreated, map[string]interface{}{
				"message": "Comment submitted successfully. It will appear after approval.",
				"comment": map[string]interface{}{"id": 5, "status": "pending", "is_guest": true},
			})
			return
		}
		_, hasGuestName := body["guest_name"]
		assert.False(t, hasGuestName)
		writeJSON(t, w, http.StatusCreated, map[string]interface{}{
			"message": "Comment added successfully",
			"comment": map[string]interface{}{"id": 6, "status": "approved"},
		})
	}).Methods(http.MethodPost)
	r.HandleFunc("/comments/{id}/moderate", func(w http.ResponseWriter, req *http.Request) {
		body := map[string]string{}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "reject", body["action"])
		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"message": "Comment rejected successfully",
			"comment": map[string]interface{}{"id": 5, "status": "rejected"},
		})
	}).Methods(http.MethodPatch)
	r.HandleFunc("/comments/{id}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, http.StatusForbidden, map[string]string{"error": "Not your comment"})
	}).Methods(http.MethodPut, http.MethodDelete)
	client, _ := newTestClient(t, r)
	ctx := context.Background()

	page, err := client.Comments(ctx, "", CommentsQuery{PostID: 3, Status: CommentStatusApproved})
	require.NoError(t, err)
	require.Len(t, page.Comments, 2)
	assert.True(t, page.Comments[0].IsGuest)
	assert.Nil(t, page.Comments[0].AuthorID)
	require.NotNil(t, page.Comments[1].AuthorID)
	assert.Equal(t, 4, *page.Comments[1].AuthorID)

	guest, err := client.CreateComment(ctx, "", CommentInput{PostID: 3, GuestName: "Guest", GuestEmail: "guest@example.com", Content: "hi"})
	require.NoError(t, err)
	assert.Contains(t, guest.Message, "approval")
	assert.Equal(t, CommentStatusPending, guest.Comment.Status)

	user, err := client.CreateComment(ctx, "tok", CommentInput{PostID: 3, GuestName: "ignored", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 6, user.Comment.ID)

	moderated, err := client.ModerateComment(ctx, "tok", 5, ModerationReject)
	require.NoError(t, err)
	assert.Equal(t, CommentStatusRejected, moderated.Comment.Status)

	_, err = client.UpdateComment(ctx, "tok", 5, "edited")
	assert.EqualError(t, err, "Not your comment")
	err = client.DeleteComment(ctx, "tok", 5)
	assert.Equal(t, http.StatusForbidden, StatusOf(err))
}

func TestClient_UsersAndRSS(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/users", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "Bearer admin-tok", req.Header.Get("Authorization"))
		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"users": []map[string]interface{}{{"id": 1, "username": "serj", "email": "serj@example.com", "is_admin": true}},
			"total": 1,
		})
	}).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", func(w http.ResponseWriter, req *http.Request) {
		if mux.Vars(req)["id"] == "1" {
			writeJSON(t, w, http.StatusBadRequest, map[string]string{"error": "Cannot delete your own account"})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]string{"message": "User deleted"})
	}).Methods(http.MethodDelete)
	r.HandleFunc("/rss", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(`<rss version="2.0"><channel></channel></rss>`))
	})
	client, _ := newTestClient(t, r)
	ctx := context.Background()

	users, err := client.Users(ctx, "admin-tok", 1, 20)
	require.NoError(t, err)
	require.Len(t, users.Users, 1)
	assert.True(t, users.Users[0].IsAdmin)

	_, err = client.DeleteUser(ctx, "admin-tok", 1)
	assert.EqualError(t, err, "Cannot delete your own account")
	msg, err := client.DeleteUser(ctx, "admin-tok", 2)
	require.NoError(t, err)
	assert.Equal(t, "User deleted", msg)

	feed, err := client.RSS(ctx)
	require.NoError(t, err)
	assert.Equal(t, `<rss version="2.0"><channel></channel></rss>`, string(feed))
}
