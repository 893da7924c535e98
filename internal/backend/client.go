// Package backend wraps the clinic management REST API: patient lookup
// and registration, the service catalog, resources, slots, and
// appointment creation.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/medconnect/whatsapp-booking-agent/internal/observability/metrics"
)

// ErrNotFound marks an expected absence (patient not registered yet)
// as opposed to a transport or server failure.
var ErrNotFound = errors.New("backend: not found")

// Config controls how the backend client behaves.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *metrics.BookingMetrics
}

// Client wraps the clinic backend REST endpoints used by the booking flow.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
	metrics    *metrics.BookingMetrics
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("backend: base URL is required")
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		metrics:    cfg.Metrics,
	}, nil
}

// SearchPatient looks up a patient by local phone number. Returns
// ErrNotFound when the backend has no matching record; during first-time
// booking that is the expected signal to start registration.
func (c *Client) SearchPatient(ctx context.Context, phone string) (*Patient, error) {
	if strings.TrimSpace(phone) == "" {
		return nil, errors.New("backend: phone required")
	}
	q := url.Values{}
	q.Set("phone", phone)
	data, err := c.invoke(ctx, http.MethodGet, "/patients/search", q, nil, "")
	if err != nil {
		return nil, err
	}
	patients, err := decodeList[Patient](data)
	if err != nil {
		return nil, err
	}
	if len(patients) == 0 {
		return nil, ErrNotFound
	}
	return &patients[0], nil
}

// CreatePatient registers a new patient. A 2xx response without a
// patient id is treated as failure.
func (c *Client) CreatePatient(ctx context.Context, req CreatePatientRequest) (*Patient, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("backend: marshal patient payload: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, "/customer/create", nil, body, "application/json")
	if err != nil {
		return nil, err
	}
	patient, err := decodeObject[Patient](data)
	if err != nil {
		return nil, err
	}
	if patient.ID == 0 {
		return nil, errors.New("backend: patient created without id")
	}
	return patient, nil
}

// ListServiceTypes fetches the service categories.
func (c *Client) ListServiceTypes(ctx context.Context) ([]ServiceType, error) {
	q := url.Values{}
	q.Set("limit", "100")
	data, err := c.invoke(ctx, http.MethodGet, "/services", q, nil, "")
	if err != nil {
		return nil, err
	}
	return decodeList[ServiceType](data)
}

// ListServicesByType fetches the services belonging to one category.
func (c *Client) ListServicesByType(ctx context.Context, serviceTypeID int64) ([]Service, error) {
	q := url.Values{}
	q.Set("service_type_id", strconv.FormatInt(serviceTypeID, 10))
	q.Set("limit", "20")
	data, err := c.invoke(ctx, http.MethodGet, "/services", q, nil, "")
	if err != nil {
		return nil, err
	}
	return decodeList[Service](data)
}

// GetService fetches one service with its requirement flags and price.
func (c *Client) GetService(ctx context.Context, serviceID int64) (*Service, error) {
	data, err := c.invoke(ctx, http.MethodGet, fmt.Sprintf("/services/%d", serviceID), nil, nil, "")
	if err != nil {
		return nil, err
	}
	return decodeObject[Service](data)
}

// ListServiceDoctors fetches the doctors attached to a service.
func (c *Client) ListServiceDoctors(ctx context.Context, serviceID int64) ([]Resource, error) {
	data, err := c.invoke(ctx, http.MethodGet, fmt.Sprintf("/services/%d/doctors", serviceID), nil, nil, "")
	if err != nil {
		return nil, err
	}
	return decodeList[Resource](data)
}

// ListDoctors fetches all doctors.
func (c *Client) ListDoctors(ctx context.Context) ([]Resource, error) {
	q := url.Values{}
	q.Set("limit", "20")
	data, err := c.invoke(ctx, http.MethodGet, "/doctors", q, nil, "")
	if err != nil {
		return nil, err
	}
	return decodeList[Resource](data)
}

// ListSpecialists fetches all specialists.
func (c *Client) ListSpecialists(ctx context.Context) ([]Resource, error) {
	q := url.Values{}
	q.Set("limit", "20")
	data, err := c.invoke(ctx, http.MethodGet, "/specialists", q, nil, "")
	if err != nil {
		return nil, err
	}
	return decodeList[Resource](data)
}

// ListDevices fetches all devices.
func (c *Client) ListDevices(ctx context.Context) ([]Resource, error) {
	q := url.Values{}
	q.Set("limit", "50")
	data, err := c.invoke(ctx, http.MethodGet, "/devices", q, nil, "")
	if err != nil {
		return nil, err
	}
	return decodeList[Resource](data)
}

// ListSlots fetches open slots for a service/resource/date combination.
func (c *Client) ListSlots(ctx context.Context, query SlotQuery) ([]Slot, error) {
	q := url.Values{}
	q.Set("service_id", strconv.FormatInt(query.ServiceID, 10))
	q.Set("date", query.Date)
	if query.DoctorID != 0 {
		q.Set("doctor_id", strconv.FormatInt(query.DoctorID, 10))
	}
	if query.SpecialistID != 0 {
		q.Set("specialist_id", strconv.FormatInt(query.SpecialistID, 10))
	}
	if query.DeviceID != 0 {
		q.Set("device_id", strconv.FormatInt(query.DeviceID, 10))
	}
	data, err := c.invoke(ctx, http.MethodGet, "/slots", q, nil, "")
	if err != nil {
		return nil, err
	}
	return decodeList[Slot](data)
}

// CreateAppointment books an appointment. The idempotency key lets the
// backend dedupe a retried create for the same session and slot.
func (c *Client) CreateAppointment(ctx context.Context, req CreateAppointmentRequest, idempotencyKey string) (*Appointment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("backend: marshal appointment payload: %w", err)
	}
	headers := http.Header{}
	if idempotencyKey != "" {
		headers.Set("Idempotency-Key", idempotencyKey)
	}
	data, err := c.invokeWithHeaders(ctx, http.MethodPost, "/appointments", nil, body, "application/json", headers)
	if err != nil {
		return nil, err
	}
	return decodeObject[Appointment](data)
}

func (c *Client) invoke(ctx context.Context, method, path string, query url.Values, body []byte, contentType string) ([]byte, error) {
	return c.invokeWithHeaders(ctx, method, path, query, body, contentType, nil)
}

func (c *Client) invokeWithHeaders(ctx context.Context, method, path string, query url.Values, body []byte, contentType string, headers http.Header) ([]byte, error) {
	fullURL := c.buildURL(path, query)
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("backend: build request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		for k, vs := range headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if body != nil {
			ct := contentType
			if ct == "" {
				ct = "application/json"
			}
			req.Header.Set("Content-Type", ct)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !shouldRetry(0, err) || attempt == c.maxRetries {
				return nil, fmt.Errorf("backend: http error: %w", err)
			}
			lastErr = err
			c.logRetry(path, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("backend: read response: %w", readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.metrics.ObserveBackendCall(path, "ok")
			return data, nil
		}
		if resp.StatusCode == http.StatusNotFound {
			c.metrics.ObserveBackendCall(path, "not_found")
			return nil, ErrNotFound
		}
		apiErr := decodeAPIError(resp.StatusCode, data)
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(path, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		c.metrics.ObserveBackendCall(path, strconv.Itoa(resp.StatusCode))
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("backend: request failed without response")
}

func (c *Client) buildURL(path string, query url.Values) string {
	trimmedPath := "/" + strings.TrimLeft(path, "/")
	full := c.baseURL + trimmedPath
	if len(query) > 0 {
		full = full + "?" + query.Encode()
	}
	return full
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(path string, attempt int, status int, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Warn("backend retry",
		"path", path,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	if status >= 500 && status <= 599 {
		return true
	}
	return false
}

// APIError is the backend's error body plus the HTTP status. Validation
// failures surface field names in Detail/Errors, which the registration
// flow inspects for the known-fixable shapes.
type APIError struct {
	StatusCode int             `json:"-"`
	Message    string          `json:"message,omitempty"`
	Detail     string          `json:"detail,omitempty"`
	Errors     json.RawMessage `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend: %s (status=%d)", e.Message, e.StatusCode)
	}
	if e.Detail != "" {
		return fmt.Sprintf("backend: %s (status=%d)", e.Detail, e.StatusCode)
	}
	return fmt.Sprintf("backend: http status %d", e.StatusCode)
}

// Fields flattens the error body into one searchable string so callers can
// look for known-fixable validation failures.
func (e *APIError) Fields() string {
	return strings.ToLower(e.Message + " " + e.Detail + " " + string(e.Errors))
}

// AsAPIError unwraps err to the backend error body, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func decodeAPIError(status int, body []byte) error {
	var parsed APIError
	if err := json.Unmarshal(body, &parsed); err != nil || (parsed.Message == "" && parsed.Detail == "" && parsed.Errors == nil) {
		parsed = APIError{Detail: strings.TrimSpace(string(body))}
	}
	parsed.StatusCode = status
	return &parsed
}

// listEnvelope tolerates the list shapes the backend emits:
// {"results": [...]}, {"data": [...]}, {"slots": [...]}, plus a bare
// top-level array.
type listEnvelope struct {
	Results json.RawMessage `json:"results"`
	Data    json.RawMessage `json:"data"`
	Slots   json.RawMessage `json:"slots"`
}

func decodeList[T any](data []byte) ([]T, error) {
	var env listEnvelope
	if err := json.Unmarshal(data, &env); err == nil {
		raw := env.Results
		if raw == nil {
			raw = env.Data
		}
		if raw == nil {
			raw = env.Slots
		}
		if raw != nil {
			return decodeListRaw[T](raw)
		}
	}
	return decodeListRaw[T](data)
}

func decodeListRaw[T any](raw json.RawMessage) ([]T, error) {
	var items []T
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	// A singleton object where a list is expected still counts as one item.
	var single T
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("backend: decode list: %w", err)
	}
	return []T{single}, nil
}

// objectEnvelope tolerates {"data": {...}} wrapping around single objects.
type objectEnvelope struct {
	Data json.RawMessage `json:"data"`
}

func decodeObject[T any](data []byte) (*T, error) {
	var env objectEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Data != nil && bytes.HasPrefix(bytes.TrimSpace(env.Data), []byte("{")) {
		data = env.Data
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("backend: decode object: %w", err)
	}
	return &out, nil
}
