package web

import (
	"net/http"

	"github.com/2beens/blogportal/internal/guard"
	"github.com/2beens/blogportal/internal/session"
	"github.com/2beens/blogportal/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type loginData struct {
	Heading      string
	Action       string
	RegisterPath string
	Email        string
}

type registerData struct {
	Heading     string
	Action      string
	LoginPath   string
	RequireCode bool
	Form        RegisterForm
}

func registerPath(cfg guard.Config) string {
	if cfg.Zone == session.ZoneAdmin {
		return "/admin/register"
	}
	return "/register"
}

func zoneTitle(cfg guard.Config) string {
	if cfg.Zone == session.ZoneAdmin {
		return "Admin"
	}
	return "User"
}

func (p *Portal) renderLogin(w http.ResponseWriter, r *http.Request, cfg guard.Config, status int, email string, flash string, err error) {
	data := p.page(r, zoneTitle(cfg)+" Login")
	if flash != "" {
		data.Flash = flash
	}
	data.Error = UserMessage(err)
	data.Data = loginData{
		Heading:      zoneTitle(cfg) + " Login",
		Action:       cfg.LoginPath,
		RegisterPath: registerPath(cfg),
		Email:        email,
	}
	p.views.render(w, status, "login.html", data)
}

func (p *Portal) handleLogin(cfg guard.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := session.FromContext(r.Context())
		if !ok {
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}

		if r.Method == http.MethodGet {
			if snap := m.Snapshot(); snap.IsAuthenticated() {
				http.Redirect(w, r, DashboardLink(snap.User).Href, http.StatusFound)
				return
			}
			p.renderLogin(w, r, cfg, http.StatusOK, "", "", nil)
			return
		}

		ctx, span := tracing.GlobalTracer.Start(r.Context(), "portal.login")
		defer span.End()
		span.SetAttributes(attribute.String("zone", string(cfg.Zone)))

		form := parseLoginForm(r)
		if err := Validate(form); err != nil {
			span.SetStatus(codes.Error, "validation")
			p.renderLogin(w, r, cfg, StatusFor(err), form.Email, "", err)
			return
		}

		s, err := m.Login(ctx, cfg.Zone, form.Email, form.Password)
		if err != nil {
			log.Debugf("login [%s] %s: %s", cfg.Zone, form.Email, err)
			span.SetStatus(codes.Error, err.Error())
			p.renderLogin(w, r, cfg, StatusFor(err), form.Email, "", err)
			return
		}

		log.Tracef("login [%s]: user %d logged in", cfg.Zone, s.User.ID)
		span.SetStatus(codes.Ok, "ok")
		http.Redirect(w, r, DashboardLink(s.User).Href, http.StatusSeeOther)
	}
}

func (p *Portal) handleRegister(cfg guard.Config) http.HandlerFunc {
	requireCode := cfg.Zone == session.ZoneAdmin
	render := func(w http.ResponseWriter, r *http.Request, status int, form RegisterForm, err error) {
		data := p.page(r, zoneTitle(cfg)+" Registration")
		data.Error = UserMessage(err)
		// never echo secrets back
		form.Password, form.ConfirmPassword, form.Code = "", "", ""
		data.Data = registerData{
			Heading:     zoneTitle(cfg) + " Registration",
			Action:      registerPath(cfg),
			LoginPath:   cfg.LoginPath,
			RequireCode: requireCode,
			Form:        form,
		}
		p.views.render(w, status, "register.html", data)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := session.FromContext(r.Context())
		if !ok {
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}

		if r.Method == http.MethodGet {
			render(w, r, http.StatusOK, RegisterForm{}, nil)
			return
		}

		ctx, span := tracing.GlobalTracer.Start(r.Context(), "portal.register")
		defer span.End()
		span.SetAttributes(attribute.String("zone", string(cfg.Zone)))

		form := parseRegisterForm(r)
		if err := ValidateRegister(form, requireCode); err != nil {
			span.SetStatus(codes.Error, "validation")
			render(w, r, StatusFor(err), form, err)
			return
		}

		req := session.RegisterRequest{
			Zone:     cfg.Zone,
			Email:    form.Email,
			Username: form.Username,
			Password: form.Password,
		}
		if requireCode {
			req.Code = form.Code
		}
		ack, err := m.Register(ctx, req)
		if err != nil {
			log.Debugf("register [%s] %s: %s", cfg.Zone, form.Email, err)
			span.SetStatus(codes.Error, err.Error())
			render(w, r, StatusFor(err), form, err)
			return
		}

		flash := "Registration successful, please log in"
		if ack != nil && ack.Message != "" {
			flash = ack.Message
		}
		span.SetStatus(codes.Ok, "ok")
		p.renderLogin(w, r, cfg, http.StatusOK, form.Email, flash, nil)
	}
}

func (p *Portal) handleLogout(w http.ResponseWriter, r *http.Request) {
	cfg, ok := guard.ForZone(session.Zone(r.PostFormValue("zone")))
	if !ok {
		cfg = guard.UserZone
	}

	if m, found := session.FromContext(r.Context()); found {
		if err := m.Logout(r.Context()); err != nil {
			log.Errorf("logout [%s]: %s", m.ClientID(), err)
		}
	}

	http.Redirect(w, r, cfg.LoginPath, http.StatusSeeOther)
}
