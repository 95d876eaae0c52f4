package authclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/2beens/blogportal/internal/backend"
	"github.com/2beens/blogportal/internal/session"
	"github.com/2beens/blogportal/internal/telemetry/metrics"
	"github.com/2beens/blogportal/internal/telemetry/tracing"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("already registered")
	ErrNetwork            = backend.ErrNetwork
)

var validate = validator.New()

var _ session.Authenticator = (*Client)(nil)

// Error carries the API message verbatim and matches the failure kind with
// errors.Is.
type Error struct {
	Kind    error
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string               `json:"access_token" validate:"required"`
	User        *session.UserProfile `json:"user" validate:"required"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Code     string `json:"code,omitempty"`
}

type ackResponse struct {
	Message string `json:"message"`
}

type Client struct {
	api            *backend.Client
	store          session.Store
	metricsManager *metrics.Manager
}

func New(api *backend.Client, store session.Store, metricsManager *metrics.Manager) *Client {
	return &Client{
		api:            api,
		store:          store,
		metricsManager: metricsManager,
	}
}

func loginPath(zone session.Zone) string {
	if zone == session.ZoneAdmin {
		return "/auth/login"
	}
	return "/auth/user/login"
}

func registerPath(zone session.Zone) string {
	if zone == session.ZoneAdmin {
		return "/auth/register"
	}
	return "/auth/user/register"
}

func (c *Client) Login(ctx context.Context, zone session.Zone, email, password string) (*session.Session, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "authclient.login")
	defer span.End()
	span.SetAttributes(attribute.String("zone", string(zone)))

	resp := &loginResponse{}
	err := c.api.DoJSON(ctx, http.MethodPost, loginPath(zone), "", nil, loginRequest{
		Email:    email,
		Password: password,
	}, resp)
	if err != nil {
		c.countLogin(zone, "failed")
		span.SetStatus(codes.Error, "login-failed")
		span.RecordError(err)
		return nil, classify(err, func(status int) error {
			switch status {
			case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
				return ErrInvalidCredentials
			}
			return nil
		})
	}

	if err := validateLoginResponse(resp); err != nil {
		log.Errorf("authclient: login [%s] response rejected: %s", zone, err)
		c.countLogin(zone, "invalid_response")
		span.SetStatus(codes.Error, "invalid-response")
		return nil, &backend.RequestError{Status: http.StatusOK, Message: backend.FallbackMessage}
	}

	c.countLogin(zone, "ok")
	span.SetStatus(codes.Ok, "ok")
	return &session.Session{
		Token: resp.AccessToken,
		User:  resp.User,
	}, nil
}

func validateLoginResponse(resp *loginResponse) error {
	if err := validate.Struct(resp); err != nil {
		return err
	}
	return validate.Struct(resp.User)
}

func (c *Client) Register(ctx context.Context, req session.RegisterRequest) (*session.Ack, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "authclient.register")
	defer span.End()
	span.SetAttributes(attribute.String("zone", string(req.Zone)))

	body := registerRequest{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	}
	if req.Zone == session.ZoneAdmin {
		body.Code = req.Code
	}

	resp := &ackResponse{}
	if err := c.api.DoJSON(ctx, http.MethodPost, registerPath(req.Zone), "", nil, body, resp); err != nil {
		span.SetStatus(codes.Error, "register-failed")
		span.RecordError(err)
		return nil, classify(err, func(status int) error {
			switch status {
			case http.StatusBadRequest, http.StatusUnprocessableEntity:
				return ErrValidation
			case http.StatusConflict:
				return ErrConflict
			}
			return nil
		})
	}

	span.SetStatus(codes.Ok, "ok")
	return &session.Ack{Message: resp.Message}, nil
}

// GetUser returns the stored profile of clientID, or nil when there is no
// session. It never calls the API.
func (c *Client) GetUser(ctx context.Context, clientID string) (*session.UserProfile, error) {
	s, err := c.store.Load(ctx, clientID)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return nil, nil
		}
		return nil, err
	}
	return s.User, nil
}

func (c *Client) IsAuthenticated(ctx context.Context, clientID string) (bool, error) {
	user, err := c.GetUser(ctx, clientID)
	if err != nil {
		return false, err
	}
	return user != nil, nil
}

func (c *Client) ClearAuth(ctx context.Context, clientID string) error {
	if err := c.store.Clear(ctx, clientID); err != nil {
		return fmt.Errorf("clear auth: %w", err)
	}
	return nil
}

func (c *Client) countLogin(zone session.Zone, result string) {
	if c.metricsManager != nil {
		c.metricsManager.CounterLogins.WithLabelValues(string(zone), result).Inc()
	}
}

// classify maps an API failure to an *Error of the kind picked by kindOf,
// keeping the API message. Network errors and unmapped statuses are returned
// unchanged.
func classify(err error, kindOf func(status int) error) error {
	var reqErr *backend.RequestError
	if !errors.As(err, &reqErr) {
		return err
	}
	kind := kindOf(reqErr.Status)
	if kind == nil {
		return err
	}
	return &Error{
		Kind:    kind,
		Status:  reqErr.Status,
		Message: reqErr.Message,
	}
}
