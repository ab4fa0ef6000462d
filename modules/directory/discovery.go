package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// DefaultDiscoveryPath is where the controller publishes its service list.
const DefaultDiscoveryPath = "/config/services"

// maxDiscoveryBody caps how much of a discovery response is read.
const maxDiscoveryBody = 1 << 20

// Port accepts a JSON number or a numeric string. Numbers are normalised
// to their decimal integer form, so 8000.0 and 8e3 both become "8000".
type Port string

// UnmarshalJSON implements json.Unmarshaler.
func (p *Port) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Port(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if n != math.Trunc(n) || n < 0 || n > 65535 {
		return fmt.Errorf("%w: port %s is not an integer in 0-65535", ErrInvalidDiscoveryResponse, data)
	}
	*p = Port(strconv.Itoa(int(n)))
	return nil
}

// Descriptor is one entry of the discovery response.
type Descriptor struct {
	Name   string `json:"name"`
	Scheme string `json:"http"`
	Host   string `json:"ip_host"`
	IP     string `json:"ip,omitempty"`
	Port   Port   `json:"port"`
}

// URL builds scheme://host:port exactly from the descriptor fields.
func (d Descriptor) URL() string {
	return d.Scheme + "://" + d.Host + ":" + string(d.Port)
}

// Record converts the descriptor into a directory record.
func (d Descriptor) Record() Record {
	return Record{
		Name:   d.Name,
		URL:    d.URL(),
		Scheme: d.Scheme,
		Host:   d.Host,
		IP:     d.IP,
		Port:   string(d.Port),
	}
}

type discoveryResponse struct {
	Services []Descriptor `json:"services"`
}

const discoverySchemaURL = "petwalk://directory/services.schema.json"

const discoverySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["services"],
  "properties": {
    "services": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "ip_host", "port", "http"],
        "properties": {
          "name":    {"type": "string", "minLength": 1},
          "ip_host": {"type": "string", "minLength": 1},
          "ip":      {"type": "string"},
          "http":    {"type": "string", "pattern": "^[A-Za-z][A-Za-z0-9+.-]*$"},
          "port": {
            "anyOf": [
              {"type": "integer", "minimum": 0, "maximum": 65535},
              {"type": "string", "pattern": "^[0-9]{1,5}$"}
            ]
          }
        }
      }
    }
  }
}`

var compileDiscoverySchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(discoverySchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse discovery schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(discoverySchemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add discovery schema: %w", err)
	}
	return compiler.Compile(discoverySchemaURL)
})

// ParseDiscovery validates body against the discovery schema and decodes
// the descriptors.
func ParseDiscovery(body []byte) ([]Descriptor, error) {
	schema, err := compileDiscoverySchema()
	if err != nil {
		return nil, err
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDiscoveryResponse, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDiscoveryResponse, err)
	}

	var resp discoveryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDiscoveryResponse, err)
	}
	return resp.Services, nil
}

// HTTPFetcher performs the discovery GET.
type HTTPFetcher struct {
	Client  *http.Client
	BaseURL string
	Path    string
}

// NewHTTPFetcher creates a fetcher for baseURL + DefaultDiscoveryPath.
// A nil client means http.DefaultClient.
func NewHTTPFetcher(client *http.Client, baseURL string) *HTTPFetcher {
	return &HTTPFetcher{Client: client, BaseURL: baseURL, Path: DefaultDiscoveryPath}
}

// Endpoint returns the full discovery URL.
func (f *HTTPFetcher) Endpoint() string {
	path := f.Path
	if path == "" {
		path = DefaultDiscoveryPath
	}
	return strings.TrimRight(f.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// Fetch issues one GET and parses the response.
func (f *HTTPFetcher) Fetch(ctx context.Context) ([]Descriptor, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Endpoint(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDiscoveryBody))
		return nil, fmt.Errorf("%w: status %d", ErrDiscoveryFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDiscoveryBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrDiscoveryFailed, err)
	}
	return ParseDiscovery(body)
}
