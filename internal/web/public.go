package web

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/2beens/blogportal/internal/backend"
	"github.com/2beens/blogportal/internal/session"
	"github.com/2beens/blogportal/internal/telemetry/tracing"
	"github.com/2beens/blogportal/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// postCommentsLimit is how many approved comments a post page shows
const postCommentsLimit = 100

type homeData struct {
	Posts    []backend.Post
	Tags     []backend.Tag
	Tag      *backend.Tag
	Page     PageInfo
	BasePath string
}

type postData struct {
	Post          *backend.Post
	Comments      []backend.Comment
	Authenticated bool
	Username      string
	Form          GuestCommentForm
	CommentError  string
}

func (p *Portal) handleHome(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "portal.home")
	defer span.End()

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	tagSlug := mux.Vars(r)["slug"]
	span.SetAttributes(attribute.Int("page", page), attribute.String("tag", tagSlug))

	data := p.page(r, "Blog")
	postsPage, err := p.posts.Posts(ctx, backend.PostsQuery{
		Page:    page,
		PerPage: defaultPerPage,
		Status:  backend.PostStatusPublished,
		Tag:     tagSlug,
	})
	if err != nil {
		log.Errorf("home, get posts page %d [%s]: %s", page, tagSlug, err)
		data.Title = "Something went wrong"
		data.Error = UserMessage(err)
		p.views.render(w, StatusFor(err), "message.html", data)
		return
	}

	tags, err := p.posts.Tags(ctx)
	if err != nil {
		// the list still renders without the tag cloud
		log.Warnf("home, get tags: %s", err)
	}

	basePath := "/"
	if tagSlug != "" {
		basePath = "/tag/" + url.PathEscape(tagSlug)
		if postsPage.Tag != nil {
			data.Title = postsPage.Tag.Name
		}
	}

	data.Data = homeData{
		Posts:    postsPage.Posts,
		Tags:     tags,
		Tag:      postsPage.Tag,
		Page:     ServerPageInfo(postsPage.Pagination, defaultPerPage),
		BasePath: basePath,
	}
	p.views.render(w, http.StatusOK, "home.html", data)
}

func (p *Portal) handlePost(w http.ResponseWriter, r *http.Request) {
	data, ok := p.postPage(w, r)
	if !ok {
		return
	}
	p.views.render(w, http.StatusOK, "post.html", data)
}

// postPage loads the post and its approved comments, rendering the failure
// page when that is not possible.
func (p *Portal) postPage(w http.ResponseWriter, r *http.Request) (*pageData, bool) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "portal.post")
	defer span.End()

	slug := mux.Vars(r)["slug"]
	span.SetAttributes(attribute.String("slug", slug))

	data := p.page(r, "")
	post, err := p.posts.Post(ctx, slug)
	if err != nil {
		log.Errorf("post page [%s]: %s", slug, err)
		data.Title = "Post not available"
		data.Error = UserMessage(err)
		p.views.render(w, StatusFor(err), "message.html", data)
		return nil, false
	}

	comments := []backend.Comment{}
	commentsPage, err := p.api.Comments(ctx, "", backend.CommentsQuery{
		PostID:  post.ID,
		Status:  backend.CommentStatusApproved,
		PerPage: postCommentsLimit,
	})
	if err != nil {
		log.Warnf("post page [%s], get comments: %s", slug, err)
	} else {
		comments = commentsPage.Comments
	}

	data.Title = post.Title
	data.Data = &postData{
		Post:          post,
		Comments:      comments,
		Authenticated: data.Header.Authenticated,
		Username:      data.Header.Username,
	}
	return data, true
}

func (p *Portal) handleNewComment(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "portal.newComment")
	defer span.End()

	slug := mux.Vars(r)["slug"]
	if err := r.ParseForm(); err != nil {
		log.Errorf("new comment [%s], parse form: %s", slug, err)
		http.Error(w, "parse form error", http.StatusBadRequest)
		return
	}

	data, ok := p.postPage(w, r)
	if !ok {
		return
	}
	pd := data.Data.(*postData)

	var token string
	if m, found := session.FromContext(ctx); found {
		token = m.Token()
	}

	in := backend.CommentInput{
		PostID:  pd.Post.ID,
		Content: trimmed(r, "content"),
	}
	var validationErr error
	if token == "" {
		form := GuestCommentForm{
			GuestName:  trimmed(r, "guest_name"),
			GuestEmail: trimmed(r, "guest_email"),
			Content:    in.Content,
		}
		pd.Form = form
		in.GuestName = form.GuestName
		in.GuestEmail = form.GuestEmail
		validationErr = Validate(form)
	} else {
		pd.Form.Content = in.Content
		validationErr = Validate(CommentForm{Content: in.Content})
	}
	if validationErr != nil {
		pd.CommentError = UserMessage(validationErr)
		p.views.render(w, http.StatusBadRequest, "post.html", data)
		return
	}

	span.SetAttributes(attribute.Bool("guest", token == ""))
	result, err := p.api.CreateComment(ctx, token, in)
	if err != nil {
		log.Errorf("new comment [%s]: %s", slug, err)
		pd.CommentError = UserMessage(err)
		if backend.StatusOf(err) == http.StatusUnauthorized {
			if m, found := session.FromContext(ctx); found {
				if logoutErr := m.Logout(ctx); logoutErr != nil {
					log.Warnf("new comment [%s], logout after rejected token: %s", slug, logoutErr)
				}
				data.Header = NewHeader(m.Snapshot(), p.rssFeedURL)
				pd.Authenticated = false
			}
			pd.CommentError = "Your session has expired, please log in again"
		}
		p.views.render(w, StatusFor(err), "post.html", data)
		return
	}

	done := "comment-pending"
	if token != "" && result.Comment != nil && result.Comment.Status == backend.CommentStatusApproved {
		done = "comment-posted"
	}
	p.posts.Invalidate()
	redirectDone(w, r, "/blog/"+url.PathEscape(slug), done)
}

func (p *Portal) handleRSS(w http.ResponseWriter, r *http.Request) {
	feed, err := p.api.RSS(r.Context())
	if err != nil {
		log.Errorf("rss: %s", err)
		http.Error(w, UserMessage(err), StatusFor(err))
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.RSS, feed)
}
