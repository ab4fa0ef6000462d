package devbackend

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/petwalk/petwalk/modules/api"
	"github.com/petwalk/petwalk/modules/directory"
)

// timestampLayout sorts lexically in time order.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// maxUploadMemory bounds multipart parsing for new posts.
const maxUploadMemory = 8 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func (s *Server) now() string {
	return s.opts.Now().UTC().Format(timestampLayout)
}

func (s *Server) handleServices(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	status := s.discoveryStatus
	services := append([]directory.Descriptor(nil), s.services...)
	s.mu.Unlock()

	if status != http.StatusOK {
		writeMessage(w, status, "service list unavailable")
		return
	}
	if services == nil {
		services = []directory.Descriptor{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[body.Username]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(body.Password)) != nil {
		s.opts.Logger.Debug("Rejected login", "username", body.Username)
		writeMessage(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	tok, err := s.IssueToken(acc.user.ID)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": tok})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body api.Signup
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Username == "" || body.Email == "" || body.Password == "" {
		writeMessage(w, http.StatusBadRequest, "username, email and password are required")
		return
	}

	s.mu.Lock()
	if _, exists := s.accounts[body.Username]; exists {
		s.mu.Unlock()
		writeMessage(w, http.StatusBadRequest, "User already exists")
		return
	}
	id := s.addUserLocked(body.Username, body.Email, body.Password, body.Phone)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]string{"message": "User created", "user_id": id})
}

func (s *Server) handleSelf(w http.ResponseWriter, r *http.Request) {
	u, ok := s.userByID(currentUser(r))
	if !ok {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 10
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	userID := q.Get("user_id")
	before := q.Get("last_timestamp")

	s.mu.Lock()
	page := make([]api.Post, 0, limit)
	// newest first
	for i := len(s.posts) - 1; i >= 0 && len(page) < limit; i-- {
		p := s.posts[i]
		if userID != "" && p.User.ID != userID {
			continue
		}
		if before != "" && p.Timestamp >= before {
			continue
		}
		page = append(page, p)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"posts": page})
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.posts {
		if p.ID == id {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeMessage(w, http.StatusNotFound, "Post not found")
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeMessage(w, http.StatusBadRequest, "expected multipart form")
		return
	}
	content := r.FormValue("content")
	if strings.TrimSpace(content) == "" {
		writeMessage(w, http.StatusBadRequest, "content is required")
		return
	}

	author, _ := s.userByID(currentUser(r))
	post := api.Post{
		ID:        uuid.NewString(),
		Content:   content,
		Images:    []string{},
		User:      api.PostAuthor{ID: author.ID, Username: author.Username},
		Location:  r.FormValue("location"),
		Timestamp: s.now(),
		Reactions: []api.Reaction{},
	}
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["images"] {
			post.Images = append(post.Images, "/static/"+post.ID+"/"+path.Base(fh.Filename))
		}
	}

	s.mu.Lock()
	s.posts = append(s.posts, post)
	for _, acc := range s.accounts {
		if acc.user.ID == author.ID {
			acc.user.Posts = append(acc.user.Posts, post.ID)
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)
	s.mu.Lock()
	routes := append([]api.Route{}, s.routes[userID]...)
	s.mu.Unlock()
	sort.Slice(routes, func(i, j int) bool { return routes[i].ID < routes[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"routes": routes})
}

// handleRoutePost generates a route when the body carries a start point
// and saves the posted route otherwise.
func (s *Server) handleRoutePost(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	data, _ := json.Marshal(raw)
	if _, ok := raw["point"]; ok {
		var params api.RouteParams
		if err := json.Unmarshal(data, &params); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid route parameters")
			return
		}
		s.generateRoute(w, currentUser(r), params)
		return
	}

	var route api.Route
	if err := json.Unmarshal(data, &route); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid route")
		return
	}
	s.saveRoute(w, currentUser(r), route)
}

func (s *Server) generateRoute(w http.ResponseWriter, userID string, params api.RouteParams) {
	if params.DeclaredDistance <= 0 {
		writeMessage(w, http.StatusBadRequest, "declared_distance must be positive")
		return
	}

	now := s.opts.Now()
	s.mu.Lock()
	last, seen := s.lastGenerate[userID]
	if seen && now.Sub(last) < s.opts.GenerateInterval {
		s.mu.Unlock()
		writeMessage(w, http.StatusTooManyRequests, "Too many route requests, slow down")
		return
	}
	s.lastGenerate[userID] = now
	s.mu.Unlock()

	geometry, err := json.Marshal(api.LineString{
		Type:        "LineString",
		Coordinates: loop(params.Point, params.DeclaredDistance),
	})
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.Route{
		DeclaredDistance: params.DeclaredDistance,
		AvoidGreen:       params.AvoidGreen,
		PreferGreen:      params.PreferGreen,
		IncludeWeather:   params.IncludeWeather,
		Route:            string(geometry),
		Timestamp:        s.now(),
	})
}

// loop returns a closed square walk of roughly distance metres starting
// and ending at p, as [lon, lat] pairs.
func loop(p api.Point, distance int) [][]float64 {
	const metresPerDegree = 111_320.0
	side := float64(distance) / 4
	dLat := side / metresPerDegree
	dLon := side / (metresPerDegree * math.Max(math.Cos(p.Latitude*math.Pi/180), 0.01))
	return [][]float64{
		{p.Longitude, p.Latitude},
		{p.Longitude + dLon, p.Latitude},
		{p.Longitude + dLon, p.Latitude + dLat},
		{p.Longitude, p.Latitude + dLat},
		{p.Longitude, p.Latitude},
	}
}

func (s *Server) saveRoute(w http.ResponseWriter, userID string, route api.Route) {
	if _, err := route.Parse(); err != nil {
		writeMessage(w, http.StatusBadRequest, "route geometry is not valid GeoJSON")
		return
	}

	s.mu.Lock()
	route.ID = s.nextID
	s.nextID++
	if route.Timestamp == "" {
		route.Timestamp = s.now()
	}
	s.routes[userID] = append(s.routes[userID], route)
	s.mu.Unlock()

	s.Notify(userID, "route_saved", route)
	writeJSON(w, http.StatusCreated, route)
}

func (s *Server) handleRouteDelete(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "route id must be an integer")
		return
	}

	s.mu.Lock()
	routes := s.routes[userID]
	idx := -1
	for i, rt := range routes {
		if rt.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		writeMessage(w, http.StatusNotFound, fmt.Sprintf("Route %d not found", id))
		return
	}
	s.routes[userID] = append(routes[:idx:idx], routes[idx+1:]...)
	s.mu.Unlock()

	s.Notify(userID, "route_removed", map[string]int{"id": id})
	writeMessage(w, http.StatusOK, "Route removed")
}

// ScanData is where a pet tag was scanned.
type ScanData struct {
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Scan is the body of /emit/scan.
type Scan struct {
	UserOwnerID    string   `json:"user_owner_id"`
	NotificationID string   `json:"notification_id"`
	Data           ScanData `json:"data"`
	Timestamp      string   `json:"timestamp"`
}

// handleEmitScan pushes a tag scan to the pet owner's sockets.
func (s *Server) handleEmitScan(w http.ResponseWriter, r *http.Request) {
	var scan Scan
	if err := json.NewDecoder(r.Body).Decode(&scan); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if scan.UserOwnerID == "" {
		writeMessage(w, http.StatusBadRequest, "user_owner_id is required")
		return
	}
	if scan.Timestamp == "" {
		scan.Timestamp = s.now()
	}

	sent := s.Notify(scan.UserOwnerID, "notification_scan", map[string]any{
		"notification_id":   scan.NotificationID,
		"notification_type": "scan",
		"data":              scan.Data,
		"timestamp":         scan.Timestamp,
	})
	writeJSON(w, http.StatusOK, map[string]any{"message": "Notification sent", "delivered": sent})
}
