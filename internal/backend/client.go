package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2beens/blogportal/internal/telemetry/metrics"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// FallbackMessage is shown when the API gave no usable error message.
const FallbackMessage = "request failed"

var ErrNetwork = errors.New("network error")

// RequestError is any non-2xx API response. Message is what the API said,
// and is meant to be shown to the user as is.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// StatusOf returns the HTTP status of a RequestError in err's chain, or 0.
func StatusOf(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Status
	}
	return 0
}

type apiErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client talks JSON to the blog REST API.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	metricsManager *metrics.Manager
}

func NewClient(baseURL string, timeout time.Duration, metricsManager *metrics.Manager) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		metricsManager: metricsManager,
	}
}

// DoJSON sends in (when not nil) as JSON body and decodes the response into
// out (when not nil). A bearer token is attached when token is non empty.
func (c *Client) DoJSON(ctx context.Context, method, path, token string, query url.Values, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		reqJson, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(reqJson)
		contentType = "application/json"
	}

	respBody, err := c.do(ctx, method, path, token, query, body, contentType)
	if err != nil {
		return err
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		log.Errorf("backend %s %s: unmarshal response: %s", method, path, err)
		return &RequestError{Status: http.StatusOK, Message: FallbackMessage}
	}
	return nil
}

func (c *Client) do(
	ctx context.Context,
	method, path, token string,
	query url.Values,
	body io.Reader,
	contentType string,
) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, "error", start)
		log.Errorf("backend %s %s: %s", method, path, err)
		return nil, fmt.Errorf("%w: %s", ErrNetwork, err)
	}
	defer resp.Body.Close()
	c.observe(method, strconv.Itoa(resp.StatusCode), start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %s", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newRequestError(resp.StatusCode, respBody)
	}

	return respBody, nil
}

func (c *Client) observe(method, status string, start time.Time) {
	if c.metricsManager == nil {
		return
	}
	c.metricsManager.HistogramBackendDuration.
		WithLabelValues(method, status).
		Observe(time.Since(start).Seconds())
}

func newRequestError(status int, body []byte) *RequestError {
	reqErr := &RequestError{Status: status, Message: FallbackMessage}
	apiErr := apiErrorBody{}
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return reqErr
	}
	switch {
	case apiErr.Error != "":
		reqErr.Message = apiErr.Error
	case apiErr.Message != "":
		reqErr.Message = apiErr.Message
	}
	return reqErr
}

func pageQuery(page, perPage int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}
	return q
}
