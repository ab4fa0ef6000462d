// Package devbackend is an in-process stand-in for the PetWalk backend:
// the controller's discovery, user, post and route endpoints plus the
// notifier's Socket.IO endpoint, all on one chi router. It backs the
// client's tests and the petwalk-devserver command.
package devbackend

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/petwalk/petwalk"
	"github.com/petwalk/petwalk/modules/api"
	"github.com/petwalk/petwalk/modules/directory"
)

// Options configures a Server.
type Options struct {
	// Secret signs access tokens. Defaults to a fixed development key.
	Secret []byte

	// TokenTTL is the access token lifetime.
	TokenTTL time.Duration

	// GenerateInterval is the per-user minimum spacing between route
	// generations; faster calls get 429.
	GenerateInterval time.Duration

	// PingInterval is the Socket.IO heartbeat period.
	PingInterval time.Duration

	// PasswordCost is the bcrypt cost for stored passwords.
	PasswordCost int

	Logger petwalk.Logger
	Now    func() time.Time
}

type account struct {
	user         api.User
	passwordHash []byte
}

// Server is the fake backend. It is safe for concurrent use.
type Server struct {
	router   chi.Router
	opts     Options
	upgrader websocket.Upgrader

	mu              sync.Mutex
	services        []directory.Descriptor
	discoveryStatus int
	accounts        map[string]*account // by username
	posts           []api.Post
	routes          map[string][]api.Route // by user ID
	nextID          int
	lastGenerate    map[string]time.Time
	sockets         map[string]map[*socket]struct{} // by user ID
}

// New creates a Server with no users.
func New(opts Options) *Server {
	if len(opts.Secret) == 0 {
		opts.Secret = []byte("petwalk-dev-secret")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.GenerateInterval <= 0 {
		opts.GenerateInterval = 15 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.PasswordCost < bcrypt.MinCost {
		opts.PasswordCost = bcrypt.MinCost
	}
	if opts.Logger == nil {
		opts.Logger = petwalk.NopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		opts:            opts,
		discoveryStatus: http.StatusOK,
		accounts:        make(map[string]*account),
		routes:          make(map[string][]api.Route),
		lastGenerate:    make(map[string]time.Time),
		sockets:         make(map[string]map[*socket]struct{}),
		nextID:          1,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.router = s.routesTable()
	return s
}

func (s *Server) routesTable() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get(directory.DefaultDiscoveryPath, s.handleServices)

	r.Post("/user/login", s.handleLogin)
	r.Post("/user/signup", s.handleSignup)
	r.With(s.authenticate).Get("/user/self", s.handleSelf)

	r.Get("/post", s.handlePosts)
	r.With(s.authenticate).Get("/post/single", s.handlePost)
	r.With(s.authenticate).Post("/post/", s.handleCreatePost)

	r.Route("/route", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/", s.handleRoutes)
		r.Post("/", s.handleRoutePost)
		r.Delete("/{id}", s.handleRouteDelete)
	})

	r.Post("/emit/scan", s.handleEmitScan)
	r.Get("/socket.io/", s.handleSocket)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetServices replaces the discovery response.
func (s *Server) SetServices(services ...directory.Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = append([]directory.Descriptor(nil), services...)
}

// SetDiscoveryStatus makes the discovery endpoint answer with status;
// anything but 200 returns an error body.
func (s *Server) SetDiscoveryStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discoveryStatus = status
}

// AdvertiseSelf publishes controller, routes and notifier entries that
// all point at baseURL.
func (s *Server) AdvertiseSelf(baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		return fmt.Errorf("base url needs an explicit port: %w", err)
	}
	var services []directory.Descriptor
	for _, name := range []string{"controller", "routes", "notifier"} {
		services = append(services, directory.Descriptor{
			Name:   name,
			Scheme: u.Scheme,
			Host:   host,
			IP:     host,
			Port:   directory.Port(port),
		})
	}
	s.SetServices(services...)
	return nil
}

// AddUser registers an account and returns its ID.
func (s *Server) AddUser(username, email, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, email, password, "")
}

func (s *Server) addUserLocked(username, email, password, phone string) string {
	id := fmt.Sprintf("user-%d", s.nextID)
	s.nextID++
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.PasswordCost)
	if err != nil {
		// only passwords over 72 bytes fail; keep them unusable
		s.opts.Logger.Warn("Password not stored", "username", username, "error", err)
	}
	s.accounts[username] = &account{
		user:         api.User{ID: id, Username: username, Email: email, Phone: phone},
		passwordHash: hash,
	}
	return id
}

func (s *Server) userByID(id string) (api.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.user.ID == id {
			return a.user, true
		}
	}
	return api.User{}, false
}
