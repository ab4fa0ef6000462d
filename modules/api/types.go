package api

import (
	"encoding/json"
	"fmt"
	"io"
)

// User is the profile returned by /user/self.
type User struct {
	ID                string   `json:"id"`
	Username          string   `json:"username"`
	Bio               string   `json:"bio,omitempty"`
	Email             string   `json:"email,omitempty"`
	ProfilePictureURL string   `json:"profile_picture_url,omitempty"`
	Scans             []string `json:"scans,omitempty"`
	Posts             []string `json:"posts,omitempty"`
	Location          string   `json:"location,omitempty"`
	IsPremium         bool     `json:"is_premium"`
	IsPrivate         bool     `json:"is_private"`
	Phone             string   `json:"phone,omitempty"`
}

type Reaction struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	ReactionType string `json:"reaction_type"`
}

type PostAuthor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Image    string `json:"image,omitempty"`
}

type Post struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	Images    []string   `json:"images"`
	User      PostAuthor `json:"user"`
	Location  string     `json:"location,omitempty"`
	Timestamp string     `json:"timestamp"`
	Reactions []Reaction `json:"reactions"`
}

// PostsQuery pages through the feed. Zero values are omitted.
type PostsQuery struct {
	UserID        string
	LastTimestamp string
	// Limit defaults to 10.
	Limit int
}

// Image is one file attached to a new post.
type Image struct {
	Name string
	Data io.Reader
}

type NewPost struct {
	Content  string
	Location string
	Images   []Image
}

type Signup struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RouteParams requests a generated walk.
type RouteParams struct {
	Point            Point `json:"point"`
	DeclaredDistance int   `json:"declared_distance"`
	PreferGreen      bool  `json:"is_prefer_green"`
	AvoidGreen       bool  `json:"is_avoid_green"`
	IncludeWeather   bool  `json:"is_include_weather"`
}

// Route is a route as the backend sends it; the geometry is a GeoJSON
// document encoded as a string.
type Route struct {
	ID               int    `json:"id"`
	DeclaredDistance int    `json:"decl_distance"`
	AvoidGreen       bool   `json:"is_avoid_green"`
	PreferGreen      bool   `json:"is_prefer_green"`
	IncludeWeather   bool   `json:"is_include_weather"`
	Route            string `json:"route"`
	Timestamp        string `json:"timestamp"`
}

// LineString is the decoded route geometry.
type LineString struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}

// SavedRoute is a Route with its geometry decoded.
type SavedRoute struct {
	Route
	GeoJSON LineString `json:"geojson"`
}

// Parse decodes the route geometry.
func (r Route) Parse() (SavedRoute, error) {
	saved := SavedRoute{Route: r}
	if err := json.Unmarshal([]byte(r.Route), &saved.GeoJSON); err != nil {
		return SavedRoute{}, fmt.Errorf("%w: route %d geometry: %w", ErrDecode, r.ID, err)
	}
	return saved, nil
}
