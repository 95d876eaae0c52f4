package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/2beens/blogportal/internal/backend"
	"github.com/2beens/blogportal/internal/guard"
	"github.com/2beens/blogportal/internal/session"
	"github.com/2beens/blogportal/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Handlers shared by the user portal and the admin console.

type postFormData struct {
	Heading  string
	Action   string
	BackPath string
	Form     PostForm
}

func postFormFrom(post *backend.Post) PostForm {
	names := make([]string, 0, len(post.Tags))
	for _, t := range post.Tags {
		names = append(names, t.Name)
	}
	return PostForm{
		Title:         post.Title,
		Content:       post.Content,
		Excerpt:       post.Excerpt,
		Tags:          strings.Join(names, ", "),
		Status:        post.Status,
		FeaturedImage: post.FeaturedImage,
	}
}

func (p *Portal) renderPostForm(w http.ResponseWriter, r *http.Request, cfg guard.Config, basePath string, id, status int, form PostForm, err error) {
	heading := "New post"
	action := basePath + "/new"
	if id > 0 {
		heading = "Edit post"
		action = basePath + "/" + strconv.Itoa(id) + "/edit"
	}
	data := p.guardedPage(r, cfg, heading)
	data.Error = UserMessage(err)
	data.Data = postFormData{
		Heading:  heading,
		Action:   action,
		BackPath: basePath,
		Form:     form,
	}
	p.views.render(w, status, "post_form.html", data)
}

func consoleScope(cfg guard.Config) backend.Scope {
	if cfg.Zone == session.ZoneAdmin {
		return backend.ScopeAdmin
	}
	return backend.ScopeUser
}

// ownsPost reports whether user may edit post in the zone. The admin zone may
// edit any post.
func ownsPost(cfg guard.Config, user *session.UserProfile, post *backend.Post) bool {
	if cfg.Zone == session.ZoneAdmin {
		return true
	}
	return user != nil && post.AuthorID == user.ID
}

// handlePostForm serves the new and edit post forms of a zone, and saves
// them. An attached image is uploaded first and becomes the featured image.
func (p *Portal) handlePostForm(cfg guard.Config, basePath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.GlobalTracer.Start(r.Context(), "portal.postForm")
		defer span.End()

		token, user := authed(r)
		id := idVar(r)
		span.SetAttributes(attribute.String("zone", string(cfg.Zone)), attribute.Int("post.id", id))

		var existing *backend.Post
		if id > 0 {
			post, err := p.api.ConsolePost(ctx, token, consoleScope(cfg), id)
			if err != nil {
				p.fail(w, r, cfg, "post form, get post", err)
				return
			}
			if !ownsPost(cfg, user, post) {
				data := p.guardedPage(r, cfg, "Not allowed")
				data.Error = "You can only edit your own posts"
				p.views.render(w, http.StatusForbidden, "message.html", data)
				return
			}
			existing = post
		}

		if r.Method == http.MethodGet {
			form := PostForm{Status: backend.PostStatusDraft}
			if existing != nil {
				form = postFormFrom(existing)
			}
			p.renderPostForm(w, r, cfg, basePath, id, http.StatusOK, form, nil)
			return
		}

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			log.Errorf("post form, parse multipart: %s", err)
			p.renderPostForm(w, r, cfg, basePath, id, http.StatusBadRequest, parsePostForm(r), &ValidationError{Message: "Invalid form data"})
			return
		}

		form := parsePostForm(r)
		if form.Status == "" {
			form.Status = backend.PostStatusDraft
		}
		if err := Validate(form); err != nil {
			p.renderPostForm(w, r, cfg, basePath, id, StatusFor(err), form, err)
			return
		}

		imageURL, err := p.uploadFeaturedImage(r, token)
		if err != nil {
			if backend.StatusOf(err) == http.StatusUnauthorized {
				p.fail(w, r, cfg, "post form, upload image", err)
				return
			}
			log.Errorf("post form, upload image: %s", err)
			p.renderPostForm(w, r, cfg, basePath, id, StatusFor(err), form, err)
			return
		}
		if imageURL != "" {
			form.FeaturedImage = imageURL
		}

		in := backend.PostInput{
			Title:         form.Title,
			Content:       form.Content,
			Excerpt:       form.Excerpt,
			Tags:          SplitTags(form.Tags),
			FeaturedImage: form.FeaturedImage,
			Status:        form.Status,
		}

		if id > 0 {
			_, err = p.api.UpdatePost(ctx, token, id, in)
		} else {
			_, err = p.api.CreatePost(ctx, token, in)
		}
		if err != nil {
			if backend.StatusOf(err) == http.StatusUnauthorized {
				p.fail(w, r, cfg, "post form, save", err)
				return
			}
			log.Errorf("post form, save post %d: %s", id, err)
			p.renderPostForm(w, r, cfg, basePath, id, StatusFor(err), form, err)
			return
		}

		p.posts.Invalidate()
		redirectDone(w, r, basePath, "post-saved")
	}
}

// uploadFeaturedImage uploads the "image" file of the form, if any, and
// returns its url.
func (p *Portal) uploadFeaturedImage(r *http.Request, token string) (string, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return "", nil
		}
		return "", &ValidationError{Field: "image", Message: "Invalid image upload"}
	}
	defer file.Close()

	if header.Size == 0 {
		return "", nil
	}
	return p.api.UploadImage(r.Context(), token, header.Filename, file)
}

func (p *Portal) handleDeletePost(cfg guard.Config, basePath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.GlobalTracer.Start(r.Context(), "portal.deletePost")
		defer span.End()

		token, user := authed(r)
		id := idVar(r)

		if cfg.Zone != session.ZoneAdmin {
			post, err := p.api.ConsolePost(ctx, token, consoleScope(cfg), id)
			if err != nil {
				p.fail(w, r, cfg, "delete post, get post", err)
				return
			}
			if !ownsPost(cfg, user, post) {
				data := p.guardedPage(r, cfg, "Not allowed")
				data.Error = "You can only delete your own posts"
				p.views.render(w, http.StatusForbidden, "message.html", data)
				return
			}
		}

		if err := p.api.DeletePost(ctx, token, id); err != nil {
			p.fail(w, r, cfg, "delete post", err)
			return
		}

		log.Tracef("post %d deleted [%s]", id, cfg.Zone)
		p.posts.Invalidate()
		redirectDone(w, r, basePath, "post-deleted")
	}
}

func (p *Portal) handleEditComment(cfg guard.Config, basePath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.GlobalTracer.Start(r.Context(), "portal.editComment")
		defer span.End()

		token, _ := authed(r)
		id := idVar(r)

		form := CommentForm{Content: trimmed(r, "content")}
		if err := Validate(form); err != nil {
			data := p.guardedPage(r, cfg, "Edit comment")
			data.Error = UserMessage(err)
			data.Data = "Go back and try again."
			p.views.render(w, StatusFor(err), "message.html", data)
			return
		}

		if _, err := p.api.UpdateComment(ctx, token, id, form.Content); err != nil {
			p.fail(w, r, cfg, "edit comment", err)
			return
		}

		p.posts.Invalidate()
		redirectDone(w, r, basePath, "comment-saved")
	}
}

func (p *Portal) handleDeleteComment(cfg guard.Config, basePath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.GlobalTracer.Start(r.Context(), "portal.deleteComment")
		defer span.End()

		token, _ := authed(r)
		if err := p.api.DeleteComment(ctx, token, idVar(r)); err != nil {
			p.fail(w, r, cfg, "delete comment", err)
			return
		}

		p.posts.Invalidate()
		redirectDone(w, r, basePath, "comment-deleted")
	}
}
