// Package blacklist provides a client for the Blacklist Alliance suppression
// API: a JSON bulk lookup and a multipart bulk file upload that answers with a
// ZIP of categorized CSV files.
package blacklist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadscrub/internal/scrub"
	"github.com/sells-group/leadscrub/internal/tabular"
)

const (
	defaultBaseURL    = "https://api.blacklistalliance.net"
	defaultLookupPath = "/bulklookup"
	defaultBulkPath   = "/bulk/upload"
	defaultVersion    = "v1"
)

// DefaultCategories are the result files requested from a bulk upload in
// addition to the clean file the service always returns.
var DefaultCategories = []string{"invalid", "federal_dnc"}

// Client defines the suppression API operations.
type Client interface {
	// Lookup posts one batch of phones and returns those reported suppressed.
	Lookup(ctx context.Context, phones []string) ([]string, error)
	// BulkUpload posts one upload file and returns every category CSV in the
	// response archive, in archive entry order.
	BulkUpload(ctx context.Context, file []byte) ([]CategoryCSV, error)
}

// CategoryCSV is one category file of a bulk response. An archive may hold
// several entries for the same category; each is returned on its own.
type CategoryCSV struct {
	Category string
	Entry    string
	Data     []byte
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("blacklist: %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// lookupResponse is the JSON body of a lookup answer. The field name is the
// service's own spelling.
type lookupResponse struct {
	Supression []json.RawMessage `json:"supression"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithPaths overrides the lookup and bulk upload endpoint paths.
func WithPaths(lookup, bulk string) Option {
	return func(c *httpClient) {
		if lookup != "" {
			c.lookupPath = lookup
		}
		if bulk != "" {
			c.bulkPath = bulk
		}
	}
}

// WithVersion sets the API version query parameter.
func WithVersion(v string) Option {
	return func(c *httpClient) {
		if v != "" {
			c.version = v
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeouts bounds a single lookup call and a single bulk upload.
func WithTimeouts(lookup, bulk time.Duration) Option {
	return func(c *httpClient) {
		if lookup > 0 {
			c.lookupTimeout = lookup
		}
		if bulk > 0 {
			c.bulkTimeout = bulk
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// WithCategories selects the download_<category> flags sent with bulk uploads.
func WithCategories(categories ...string) Option {
	return func(c *httpClient) {
		c.categories = categories
	}
}

type httpClient struct {
	apiKey        string
	baseURL       string
	lookupPath    string
	bulkPath      string
	version       string
	categories    []string
	lookupTimeout time.Duration
	bulkTimeout   time.Duration
	limiter       *rate.Limiter
	http          *http.Client
}

// NewClient creates a new suppression API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:        apiKey,
		baseURL:       defaultBaseURL,
		lookupPath:    defaultLookupPath,
		bulkPath:      defaultBulkPath,
		version:       defaultVersion,
		categories:    DefaultCategories,
		lookupTimeout: 60 * time.Second,
		bulkTimeout:   5 * time.Minute,
		limiter:       rate.NewLimiter(5, 5),
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// Lookup implements Client.
func (c *httpClient) Lookup(ctx context.Context, phones []string) ([]string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "blacklist: lookup rate limit")
	}
	ctx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()

	payload, err := scrub.LookupPayload(phones)
	if err != nil {
		return nil, eris.Wrap(err, "blacklist: marshal lookup")
	}

	params := url.Values{
		"key":  {c.apiKey},
		"ver":  {c.version},
		"resp": {"json"},
	}
	reqURL := c.baseURL + c.lookupPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "blacklist: build lookup request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, "lookup")
	if err != nil {
		return nil, err
	}

	var resp lookupResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "blacklist: parse lookup response")
	}
	return decodePhones(resp.Supression)
}

// decodePhones accepts phones rendered either as JSON strings or numbers.
func decodePhones(raw []json.RawMessage) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			out = append(out, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(r, &n); err != nil {
			return nil, eris.Errorf("blacklist: unexpected suppression entry %s", string(r))
		}
		out = append(out, n.String())
	}
	return out, nil
}

// BulkUpload implements Client.
func (c *httpClient) BulkUpload(ctx context.Context, file []byte) ([]CategoryCSV, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "blacklist: bulk rate limit")
	}
	ctx, cancel := context.WithTimeout(ctx, c.bulkTimeout)
	defer cancel()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"filetype", "csv"},
		{"splitchar", ","},
		{"key", c.apiKey},
		{"colnum", "1"},
	}
	for _, cat := range c.categories {
		fields = append(fields, [2]string{"download_" + cat, "true"})
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, eris.Wrapf(err, "blacklist: bulk write field %s", f[0])
		}
	}
	part, err := writer.CreateFormFile("file", "leads.csv")
	if err != nil {
		return nil, eris.Wrap(err, "blacklist: bulk create form file")
	}
	if _, err := part.Write(file); err != nil {
		return nil, eris.Wrap(err, "blacklist: bulk write file")
	}
	if err := writer.Close(); err != nil {
		return nil, eris.Wrap(err, "blacklist: bulk close writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.bulkPath, &buf)
	if err != nil {
		return nil, eris.Wrap(err, "blacklist: build bulk request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	body, err := c.do(req, "bulk upload")
	if err != nil {
		return nil, err
	}

	entries, err := tabular.UnpackZIP(body)
	if err != nil {
		return nil, eris.Wrap(err, "blacklist: unpack bulk response")
	}
	out := make([]CategoryCSV, 0, len(entries))
	for _, e := range entries {
		if !scrub.IsCategoryFile(e.Name) {
			continue
		}
		out = append(out, CategoryCSV{Category: scrub.CategoryName(e.Name), Entry: e.Name, Data: e.Data})
	}
	return out, nil
}

// do sends req and returns the body of a 2xx answer.
func (c *httpClient) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "blacklist: %s request", op)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "blacklist: %s read body", op)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
