// Package api wraps every backend endpoint the client uses. Each call
// waits for the service directory, resolves the base URL of the target
// service and maps failures onto a small error taxonomy: transport
// problems and 5xx become ErrServiceUnavailable, 429 ErrRateLimited, 401
// ErrUnauthorized and any other non-2xx a *StatusError.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/petwalk/petwalk"
	"github.com/petwalk/petwalk/modules/directory"
	"github.com/petwalk/petwalk/modules/httpclient"
)

// Backend is the full set of backend calls.
type Backend interface {
	Login(ctx context.Context, username, password string) (string, error)
	Signup(ctx context.Context, req Signup) (string, error)
	Self(ctx context.Context, token string) (User, error)

	Posts(ctx context.Context, q PostsQuery) ([]Post, error)
	Post(ctx context.Context, token, id string) (Post, error)
	CreatePost(ctx context.Context, token string, post NewPost) (Post, error)

	GenerateRoute(ctx context.Context, token string, params RouteParams) (Route, error)
	Routes(ctx context.Context, token string) ([]SavedRoute, error)
	SaveRoute(ctx context.Context, token string, route Route) (SavedRoute, error)
	RemoveRoute(ctx context.Context, token string, id int) error
}

// Client implements Backend over the shared HTTP client.
type Client struct {
	http   httpclient.ClientService
	dir    directory.Service
	logger petwalk.Logger
	config *Config
}

var _ Backend = (*Client)(nil)

// NewClient creates a Client. cfg may be nil for defaults.
func NewClient(hc httpclient.ClientService, dir directory.Service, cfg *Config, logger petwalk.Logger) *Client {
	if cfg == nil {
		cfg = &Config{ControllerService: "controller", RoutesService: "controller", MaxResponseSize: 8 << 20}
	}
	if logger == nil {
		logger = petwalk.NopLogger{}
	}
	return &Client{http: hc, dir: dir, logger: logger, config: cfg}
}

// request describes one call.
type request struct {
	method  string
	service string
	path    string
	query   url.Values
	token   string
	// body is JSON-encoded unless it is a *multipartBody.
	body any
}

type multipartBody struct {
	contentType string
	data        *bytes.Buffer
}

func (c *Client) endpoint(ctx context.Context, service, path string, query url.Values) (string, error) {
	if err := c.dir.AwaitReady(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	base, ok := directory.BaseURL(c.dir, service)
	if !ok {
		return "", fmt.Errorf("%w: no address for %q", ErrServiceUnavailable, service)
	}
	u := strings.TrimSuffix(base, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u, nil
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	target, err := c.endpoint(ctx, r.service, r.path, r.query)
	if err != nil {
		return err
	}

	var body io.Reader
	contentType := ""
	switch b := r.body.(type) {
	case nil:
	case *multipartBody:
		body, contentType = b.data, b.contentType
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body, contentType = bytes.NewReader(data), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req, httpclient.WithBearer(r.token))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %w", ErrServiceUnavailable, r.method, r.path, err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, c.config.MaxResponseSize)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{Method: r.method, URL: r.path, Code: resp.StatusCode, Message: errorMessage(limited)}
		c.logger.Debug("Backend call failed", "method", r.method, "path", r.path, "status", resp.StatusCode)
		return serr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, limited)
		return nil
	}
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrDecode, r.method, r.path, err)
	}
	return nil
}

func errorMessage(r io.Reader) string {
	var body struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	data, _ := io.ReadAll(r)
	if json.Unmarshal(data, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		return body.Msg
	}
	return ""
}

// Login exchanges credentials for an access token. A 401 here is a
// failed login and does not clear any stored session.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	err := c.do(ctx, request{
		method:  http.MethodPost,
		service: c.config.ControllerService,
		path:    "/user/login",
		body:    map[string]string{"username": username, "password": password},
	}, &out)
	if err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access_token", ErrDecode)
	}
	return out.AccessToken, nil
}

// Signup registers a user and returns the backend's message.
func (c *Client) Signup(ctx context.Context, s Signup) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	err := c.do(ctx, request{
		method:  http.MethodPost,
		service: c.config.ControllerService,
		path:    "/user/signup",
		body:    s,
	}, &out)
	return out.Message, err
}

func (c *Client) Self(ctx context.Context, token string) (User, error) {
	var u User
	err := c.do(ctx, request{
		method:  http.MethodGet,
		service: c.config.ControllerService,
		path:    "/user/self",
		token:   token,
	}, &u)
	return u, err
}

// Posts fetches one page of the public feed.
func (c *Client) Posts(ctx context.Context, q PostsQuery) ([]Post, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	if q.UserID != "" {
		query.Set("user_id", q.UserID)
	}
	if q.LastTimestamp != "" {
		query.Set("last_timestamp", q.LastTimestamp)
	}

	var out struct {
		Posts []Post `json:"posts"`
	}
	err := c.do(ctx, request{
		method:  http.MethodGet,
		service: c.config.ControllerService,
		path:    "/post",
		query:   query,
	}, &out)
	return out.Posts, err
}

func (c *Client) Post(ctx context.Context, token, id string) (Post, error) {
	var p Post
	err := c.do(ctx, request{
		method:  http.MethodGet,
		service: c.config.ControllerService,
		path:    "/post/single",
		query:   url.Values{"id": {id}},
		token:   token,
	}, &p)
	return p, err
}

// CreatePost uploads a post as multipart form data.
func (c *Client) CreatePost(ctx context.Context, token string, post NewPost) (Post, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if err := w.WriteField("content", post.Content); err != nil {
		return Post{}, err
	}
	if post.Location != "" {
		if err := w.WriteField("location", post.Location); err != nil {
			return Post{}, err
		}
	}
	for _, img := range post.Images {
		part, err := w.CreateFormFile("images", img.Name)
		if err != nil {
			return Post{}, err
		}
		if _, err := io.Copy(part, img.Data); err != nil {
			return Post{}, fmt.Errorf("failed to read image %s: %w", img.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return Post{}, err
	}

	var p Post
	err := c.do(ctx, request{
		method:  http.MethodPost,
		service: c.config.ControllerService,
		path:    "/post/",
		token:   token,
		body:    &multipartBody{contentType: w.FormDataContentType(), data: buf},
	}, &p)
	return p, err
}

// GenerateRoute asks the backend for a new walk. The backend rate limits
// this call; see ErrRateLimited.
func (c *Client) GenerateRoute(ctx context.Context, token string, params RouteParams) (Route, error) {
	var r Route
	err := c.do(ctx, request{
		method:  http.MethodPost,
		service: c.config.RoutesService,
		path:    "/route/",
		token:   token,
		body:    params,
	}, &r)
	return r, err
}

func (c *Client) Routes(ctx context.Context, token string) ([]SavedRoute, error) {
	var out struct {
		Routes []Route `json:"routes"`
	}
	err := c.do(ctx, request{
		method:  http.MethodGet,
		service: c.config.RoutesService,
		path:    "/route/",
		token:   token,
	}, &out)
	if err != nil {
		return nil, err
	}

	saved := make([]SavedRoute, 0, len(out.Routes))
	for _, r := range out.Routes {
		s, err := r.Parse()
		if err != nil {
			return nil, err
		}
		saved = append(saved, s)
	}
	return saved, nil
}

func (c *Client) SaveRoute(ctx context.Context, token string, route Route) (SavedRoute, error) {
	var r Route
	err := c.do(ctx, request{
		method:  http.MethodPost,
		service: c.config.RoutesService,
		path:    "/route/",
		token:   token,
		body:    route,
	}, &r)
	if err != nil {
		return SavedRoute{}, err
	}
	return r.Parse()
}

func (c *Client) RemoveRoute(ctx context.Context, token string, id int) error {
	return c.do(ctx, request{
		method:  http.MethodDelete,
		service: c.config.RoutesService,
		path:    "/route/" + strconv.Itoa(id),
		token:   token,
	}, nil)
}

// IsRetryable reports whether err is a transient backend condition the
// user may retry later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrRateLimited)
}
