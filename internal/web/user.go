package web

import (
	"net/http"

	"github.com/2beens/blogportal/internal/backend"
	"github.com/2beens/blogportal/internal/guard"
	"github.com/2beens/blogportal/internal/session"
	"github.com/2beens/blogportal/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

type userDashboardData struct {
	User         *session.UserProfile
	PostCount    int
	CommentCount int
}

type postsListData struct {
	Posts []backend.Post
	Query ListQuery
	Page  PageInfo
}

type commentsListData struct {
	Comments []backend.Comment
	Query    ListQuery
	Page     PageInfo
}

func (p *Portal) handleUserDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "portal.userDashboard")
	defer span.End()

	token, user, ok := authedUser(w, r, guard.UserZone)
	if !ok {
		return
	}
	stats, err := p.api.UserDashboard(ctx, token)
	if err != nil {
		p.fail(w, r, guard.UserZone, "user dashboard", err)
		return
	}
	span.SetAttributes(attribute.Int("posts", stats.TotalPosts), attribute.Int("comments", stats.TotalComments))

	data := p.guardedPage(r, guard.UserZone, "Dashboard")
	data.Data = userDashboardData{
		User:         user,
		PostCount:    stats.TotalPosts,
		CommentCount: stats.TotalComments,
	}
	p.views.render(w, http.StatusOK, "user_dashboard.html", data)
}

// handleUserPosts lists the posts authored by the logged-in user, drafts
// included.
func (p *Portal) handleUserPosts(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "portal.userPosts")
	defer span.End()

	token, _, ok := authedUser(w, r, guard.UserZone)
	if !ok {
		return
	}
	lq := ParseListQuery(r.URL.Query())
	postsPage, err := p.api.ConsolePosts(ctx, token, backend.ScopeUser, backend.PostsQuery{
		Page:    1,
		PerPage: consoleFetchSize,
		Status:  lq.Status,
	})
	if err != nil {
		p.fail(w, r, guard.UserZone, "user posts", err)
		return
	}

	posts, info := Paginate(FilterPosts(postsPage.Posts, lq), lq.Page, defaultPerPage)
	data := p.guardedPage(r, guard.UserZone, "My posts")
	data.Data = postsListData{Posts: posts, Query: lq, Page: info}
	p.views.render(w, http.StatusOK, "user_posts.html", data)
}

func (p *Portal) handleUserComments(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "portal.userComments")
	defer span.End()

	token, _, ok := authedUser(w, r, guard.UserZone)
	if !ok {
		return
	}
	lq := ParseListQuery(r.URL.Query())
	commentsPage, err := p.api.MyComments(ctx, token, 1, consoleFetchSize)
	if err != nil {
		p.fail(w, r, guard.UserZone, "user comments", err)
		return
	}

	comments, info := Paginate(FilterComments(commentsPage.Comments, lq), lq.Page, defaultPerPage)
	data := p.guardedPage(r, guard.UserZone, "My comments")
	data.Data = commentsListData{Comments: comments, Query: lq, Page: info}
	p.views.render(w, http.StatusOK, "user_comments.html", data)
}
