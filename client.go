package pricewatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jpalmerr/pricewatch/internal/poller"
)

const (
	defaultClientTimeout = 10 * time.Second

	// maxErrorBody bounds the response body text carried by an [HTTPError].
	maxErrorBody = 256
)

// Client calls the price tracker backend API.
//
// Client is immutable after creation via [NewClient] and safe for concurrent
// use. Every call carries its own timeout and returns an explicit error;
// nothing is retried.
//
// Clients are configured using the functional options pattern with
// [ClientOption] functions such as [WithHeaders], [WithTimeout],
// [WithBasePath] and [WithHTTPClient].
type Client struct {
	baseURL  string
	basePath string
	headers  map[string]string
	timeout  time.Duration
	http     *poller.Client
}

// BaseURL returns the backend origin (and any path given in the URL).
func (c *Client) BaseURL() string {
	return c.baseURL
}

// BasePath returns the path prefix applied to every API path.
func (c *Client) BasePath() string {
	return c.basePath
}

// Timeout returns the per-request timeout.
// Defaults to 10 seconds if not explicitly set via [WithTimeout].
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Headers returns a copy of the custom HTTP headers sent with every call.
func (c *Client) Headers() map[string]string {
	return copyMap(c.headers)
}

// NewClient creates a [Client] for the backend at rawURL.
//
// The rawURL parameter must be a valid http:// or https:// URL. Unless
// [WithBasePath] is given, the base path is derived from the host with
// [DefaultBasePath]; a URL that already carries a path uses that path as
// its prefix and no base path.
//
// Example:
//
//	client, err := pricewatch.NewClient("https://tracker.example.com",
//	    pricewatch.WithTimeout(5 * time.Second),
//	)
func NewClient(rawURL string, opts ...ClientOption) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.New("invalid URL: " + err.Error())
	}
	if parsed.Scheme == "" {
		return nil, errors.New("URL must have a scheme (http:// or https://)")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("URL must have a host")
	}

	cfg := &clientConfig{
		headers: make(map[string]string),
		timeout: defaultClientTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	path := strings.TrimSuffix(parsed.Path, "/")
	basePath := ""
	switch {
	case cfg.basePathSet:
		basePath = cfg.basePath
	case path == "":
		basePath = DefaultBasePath(parsed.Host)
	}

	return &Client{
		baseURL:  parsed.Scheme + "://" + parsed.Host + path,
		basePath: basePath,
		headers:  cfg.headers,
		timeout:  cfg.timeout,
		http:     poller.NewClientWith(cfg.httpClient),
	}, nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.http.Close()
}

// URL returns the absolute URL for an API path with its parameters escaped.
func (c *Client) URL(path string, params map[string]string) (string, error) {
	expanded, err := expandPath(path, params)
	if err != nil {
		return "", err
	}
	return c.baseURL + c.basePath + expanded, nil
}

// Model is one entry of the model list of a product name.
type Model struct {
	Model string `json:"model"`
}

// ListModels returns the models sold under a product name.
func (c *Client) ListModels(ctx context.Context, name string) ([]string, error) {
	var entries []Model
	if err := c.getJSON(ctx, pathModels, map[string]string{"name": name}, &entries); err != nil {
		return nil, fmt.Errorf("list models for %q: %w", name, err)
	}

	models := make([]string, 0, len(entries))
	for _, e := range entries {
		models = append(models, e.Model)
	}
	return models, nil
}

// PricePoint is one observed price.
type PricePoint struct {
	// Date is the scrape timestamp as sent by the backend (ISO 8601).
	Date string `json:"date"`

	// Price is the observed price.
	Price int64 `json:"price"`
}

// PriceTrend is the price history of one product.
type PriceTrend struct {
	Prices []PricePoint `json:"prices"`

	// URL links to the product's source page.
	URL string `json:"url"`
}

// PriceTrend returns the price history of the product identified by name
// and model.
func (c *Client) PriceTrend(ctx context.Context, name, model string) (PriceTrend, error) {
	var trend PriceTrend
	params := map[string]string{"name": name, "model": model}
	if err := c.getJSON(ctx, pathPriceTrend, params, &trend); err != nil {
		return PriceTrend{}, fmt.Errorf("price trend for %q/%q: %w", name, model, err)
	}
	return trend, nil
}

// startResponse is the body of a start-job call. The notification test
// answers {"result": 0, "error": "..."} when it could not reset prices.
type startResponse struct {
	TaskArn string `json:"taskArn"`
	Error   string `json:"error"`
}

// StartJob starts the remote job of the given kind and returns its handle.
//
// A non-2xx answer returns an [*HTTPError]. A successful answer without a
// taskArn returns an error wrapping [ErrNoHandle].
func (c *Client) StartJob(ctx context.Context, kind JobKind) (JobHandle, error) {
	path, ok := startPaths[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownJobKind, kind)
	}

	var body startResponse
	if err := c.getJSON(ctx, path, nil, &body); err != nil {
		return "", fmt.Errorf("start %s: %w", kind, err)
	}
	if strings.TrimSpace(body.TaskArn) == "" {
		if body.Error != "" {
			return "", fmt.Errorf("start %s: %w: %s", kind, ErrNoHandle, body.Error)
		}
		return "", fmt.Errorf("start %s: %w", kind, ErrNoHandle)
	}
	return JobHandle(body.TaskArn), nil
}

// statusResponse is the body of a job status call. exitCode is a number,
// the string "Unknown" or null depending on the job state.
type statusResponse struct {
	Status     string          `json:"status"`
	StopReason *string         `json:"stopReason"`
	ExitCode   json.RawMessage `json:"exitCode"`
	StoppedAt  json.RawMessage `json:"stoppedAt"`
	TaskArn    string          `json:"taskArn"`
}

// JobStatus queries the status of the job identified by handle.
//
// A response without a status is a protocol failure and returns an error.
func (c *Client) JobStatus(ctx context.Context, handle JobHandle) (Snapshot, error) {
	var body statusResponse
	params := map[string]string{"handle": string(handle)}
	if err := c.getJSON(ctx, pathJobStatus, params, &body); err != nil {
		return Snapshot{}, fmt.Errorf("job status %s: %w", handle, err)
	}
	if body.Status == "" {
		return Snapshot{}, fmt.Errorf("job status %s: malformed response: no status", handle)
	}

	snap := Snapshot{
		Status:    JobStatus(body.Status),
		ExitCode:  rawScalar(body.ExitCode),
		StoppedAt: rawScalar(body.StoppedAt),
		Handle:    JobHandle(body.TaskArn),
	}
	if body.StopReason != nil {
		snap.StopReason = *body.StopReason
	}
	if snap.Handle == "" {
		snap.Handle = handle
	}
	return snap, nil
}

// NotificationSettings is the per-item LINE notification state.
type NotificationSettings struct {
	// Success is false when the backend could not read its database.
	Success bool `json:"success"`

	// ToggleValues maps order codes to their notification toggle.
	ToggleValues map[string]bool `json:"toggleValues"`
}

// settingsResponse tolerates toggles stored as 0/1 integers.
type settingsResponse struct {
	Success      bool                `json:"success"`
	ToggleValues map[string]flexBool `json:"toggleValues"`
}

// NotificationSettings fetches the notification toggle of every item.
func (c *Client) NotificationSettings(ctx context.Context) (NotificationSettings, error) {
	var body settingsResponse
	if err := c.getJSON(ctx, pathGetNotification, nil, &body); err != nil {
		return NotificationSettings{}, fmt.Errorf("notification settings: %w", err)
	}

	settings := NotificationSettings{
		Success:      body.Success,
		ToggleValues: make(map[string]bool, len(body.ToggleValues)),
	}
	for code, v := range body.ToggleValues {
		settings.ToggleValues[code] = bool(v)
	}
	return settings, nil
}

// updateSettingRequest is the body of an update call.
type updateSettingRequest struct {
	OrderCode string `json:"order_code"`
	IsChecked bool   `json:"is_checked"`
}

// UpdateNotificationSetting sets the notification toggle of one item and
// returns the backend's confirmation message.
func (c *Client) UpdateNotificationSetting(ctx context.Context, orderCode string, enabled bool) (string, error) {
	payload, err := json.Marshal(updateSettingRequest{OrderCode: orderCode, IsChecked: enabled})
	if err != nil {
		return "", fmt.Errorf("update notification setting %s: %w", orderCode, err)
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodPost, pathUpdateNotification, nil, payload, &body); err != nil {
		return "", fmt.Errorf("update notification setting %s: %w", orderCode, err)
	}
	return body.Message, nil
}

// getJSON issues a GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, path string, params map[string]string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, params, nil, out)
}

// doJSON issues a request and decodes the JSON response into out.
//
// Transport errors, non-2xx statuses and undecodable bodies are all errors.
func (c *Client) doJSON(ctx context.Context, method, path string, params map[string]string, payload []byte, out any) error {
	target, err := c.URL(path, params)
	if err != nil {
		return err
	}

	headers := copyMap(c.headers)
	if headers == nil {
		headers = make(map[string]string, 2)
	}
	headers["Accept"] = "application/json"
	if payload != nil {
		headers["Content-Type"] = "application/json"
	}

	resp := c.http.Fetch(ctx, method, target, headers, payload, c.timeout)
	if resp.Error != nil {
		return resp.Error
	}
	if !resp.OK() {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       truncate(strings.TrimSpace(string(resp.Body)), maxErrorBody),
		}
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	return nil
}

// flexBool decodes JSON booleans, numbers and null.
type flexBool bool

// UnmarshalJSON implements json.Unmarshaler for flexBool.
func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	switch s {
	case "true":
		*b = true
	case "false", "null":
		*b = false
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid toggle value %s", s)
		}
		*b = f != 0
	}
	return nil
}

// rawScalar renders a JSON scalar as text; null and absent become "".
func rawScalar(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return s
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
