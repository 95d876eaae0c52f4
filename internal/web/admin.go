package web

import (
	"net/http"

	"github.com/2beens/blogportal/internal/backend"
	"github.com/2beens/blogportal/internal/guard"
	"github.com/2beens/blogportal/internal/session"
	"github.com/2beens/blogportal/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type adminDashboardData struct {
	User            *session.UserProfile
	TotalPosts      int
	PendingComments int
	TotalUsers      int
}

type usersListData struct {
	Users []backend.User
	Query ListQuery
	Page  PageInfo
}

func (p *Portal) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "portal.adminDashboard")
	defer span.End()

	token, user, ok := authedUser(w, r, guard.AdminZone)
	if !ok {
		return
	}

	stats, err := p.api.AdminDashboard(ctx, token)
	if err != nil {
		p.fail(w, r, guard.AdminZone, "admin dashboard", err)
		return
	}

	data := p.guardedPage(r, guard.AdminZone, "Admin dashboard")
	data.Data = adminDashboardData{
		User:            user,
		TotalPosts:      stats.TotalPosts,
		PendingComments: stats.PendingComments,
		TotalUsers:      stats.TotalUsers,
	}
	p.views.render(w, http.StatusOK, "admin_dashboard.html", data)
}

func (p *Portal) handleAdminPosts(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "portal.adminPosts")
	defer span.End()

	token, _ := authed(r)
	lq := ParseListQuery(r.URL.Query())
	span.SetAttributes(attribute.String("status", lq.Status))

	postsPage, err := p.api.ConsolePosts(ctx, token, backend.ScopeAdmin, backend.PostsQuery{
		Page:    1,
		PerPage: consoleFetchSize,
		Status:  lq.Status,
	})
	if err != nil {
		p.fail(w, r, guard.AdminZone, "admin posts", err)
		return
	}

	posts, info := Paginate(FilterPosts(postsPage.Posts, lq), lq.Page, defaultPerPage)
	data := p.guardedPage(r, guard.AdminZone, "Posts")
	data.Data = postsListData{Posts: posts, Query: lq, Page: info}
	p.views.render(w, http.StatusOK, "admin_posts.html", data)
}

func (p *Portal) handleAdminComments(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "portal.adminComments")
	defer span.End()

	token, _ := authed(r)
	lq := ParseListQuery(r.URL.Query())
	span.SetAttributes(attribute.String("status", lq.Status))

	commentsPage, err := p.api.Comments(ctx, token, backend.CommentsQuery{
		Status:  lq.Status,
		PerPage: consoleFetchSize,
	})
	if err != nil {
		p.fail(w, r, guard.AdminZone, "admin comments", err)
		return
	}

	comments, info := Paginate(FilterComments(commentsPage.Comments, lq), lq.Page, defaultPerPage)
	data := p.guardedPage(r, guard.AdminZone, "Comments")
	data.Data = commentsListData{Comments: comments, Query: lq, Page: info}
	p.views.render(w, http.StatusOK, "admin_comments.html", data)
}

func (p *Portal) handleModerateComment(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "portal.moderateComment")
	defer span.End()

	token, _ := authed(r)
	id := idVar(r)
	action := backend.ModerationAction(trimmed(r, "action"))
	if action != backend.ModerationApprove && action != backend.ModerationReject {
		data := p.guardedPage(r, guard.AdminZone, "Moderate comment")
		data.Error = "Unknown moderation action"
		p.views.render(w, http.StatusBadRequest, "message.html", data)
		return
	}
	span.SetAttributes(attribute.Int("comment.id", id), attribute.String("action", string(action)))

	if _, err := p.api.ModerateComment(ctx, token, id, action); err != nil {
		p.fail(w, r, guard.AdminZone, "moderate comment", err)
		return
	}

	log.Tracef("comment %d moderated: %s", id, action)
	p.posts.Invalidate()
	redirectDone(w, r, "/admin/comments", "comment-moderated")
}

func (p *Portal) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "portal.adminUsers")
	defer span.End()

	token, _ := authed(r)
	lq := ParseListQuery(r.URL.Query())
	usersPage, err := p.api.Users(ctx, token, 1, consoleFetchSize)
	if err != nil {
		p.fail(w, r, guard.AdminZone, "admin users", err)
		return
	}

	users, info := Paginate(FilterUsers(usersPage.Users, lq), lq.Page, defaultPerPage)
	data := p.guardedPage(r, guard.AdminZone, "Users")
	data.Data = usersListData{Users: users, Query: lq, Page: info}
	p.views.render(w, http.StatusOK, "admin_users.html", data)
}

func (p *Portal) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "portal.deleteUser")
	defer span.End()

	token, _ := authed(r)
	id := idVar(r)
	msg, err := p.api.DeleteUser(ctx, token, id)
	if err != nil {
		p.fail(w, r, guard.AdminZone, "delete user", err)
		return
	}

	log.Tracef("user %d deleted: %s", id, msg)
	p.posts.Invalidate()
	redirectDone(w, r, "/admin/users", "user-deleted")
}
