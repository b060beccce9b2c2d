package garmin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tuckwoor/garmin-analysis/internal/domain"
)

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// ClientOpts configures an HTTPClient.
type ClientOpts struct {
	BaseURL     string
	AuthURL     string
	DisplayName string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// HTTPClient is a Client backed by the Connect REST endpoints. A session
// token is obtained once with Login and sent as a bearer token afterwards.
type HTTPClient struct {
	baseURL     string
	authURL     string
	displayName string
	token       string
	http        *http.Client
	log         *slog.Logger
}

// NewHTTPClient creates an HTTPClient from opts.
func NewHTTPClient(opts ClientOpts) *HTTPClient {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	authURL := opts.AuthURL
	if authURL == "" {
		authURL = strings.TrimRight(opts.BaseURL, "/") + "/auth/login"
	}

	return &HTTPClient{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		authURL:     authURL,
		displayName: opts.DisplayName,
		http:        hc,
		log:         slog.Default().With("component", "garmin"),
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	DisplayName string `json:"display_name"`
}

// Login exchanges credentials for a session token. The display name returned
// by the service is used unless one was configured.
func (c *HTTPClient) Login(ctx context.Context, email, password string) error {
	body, err := json.Marshal(loginRequest{Username: email, Password: password})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req, "login")
	if err != nil {
		return err
	}

	var resp loginResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return &APIError{Kind: KindOther, Op: "login", Err: fmt.Errorf("decoding response: %w", err)}
	}
	if resp.AccessToken == "" {
		return &APIError{Kind: KindAuth, Op: "login", Err: errors.New("no access token in response")}
	}

	c.token = resp.AccessToken
	if c.displayName == "" {
		c.displayName = resp.DisplayName
	}
	c.log.Info("logged in", "displayName", c.displayName)
	return nil
}

// FetchDaily returns the payload of a per-day metric for date.
func (c *HTTPClient) FetchDaily(ctx context.Context, dataType domain.DataType, date time.Time) (json.RawMessage, error) {
	d := date.Format(domain.DateLayout)
	op := string(dataType) + " " + d

	var (
		path  string
		query = url.Values{}
	)
	switch dataType {
	case domain.DataTypeSleep:
		path = "/wellness-service/wellness/dailySleepData/" + url.PathEscape(c.displayName)
		query.Set("date", d)
		query.Set("nonSleepBufferMinutes", "60")
	case domain.DataTypeStress:
		path = "/wellness-service/wellness/dailyStress/" + d
	case domain.DataTypeHeartRate:
		path = "/wellness-service/wellness/dailyHeartRate/" + url.PathEscape(c.displayName)
		query.Set("date", d)
	case domain.DataTypeHRV:
		path = "/hrv-service/hrv/" + d
	case domain.DataTypeTrainingReadiness:
		path = "/metrics-service/metrics/trainingreadiness/" + d
	case domain.DataTypeRestingHeartRate:
		path = "/userstats-service/wellness/daily/" + url.PathEscape(c.displayName)
		query.Set("fromDate", d)
		query.Set("untilDate", d)
		query.Set("metricId", "60")
	default:
		return nil, &APIError{Kind: KindOther, Op: op, Err: fmt.Errorf("unsupported daily metric %q", dataType)}
	}
	return c.get(ctx, op, path, query)
}

// FetchRange returns the payload of a range metric covering [start, end].
func (c *HTTPClient) FetchRange(ctx context.Context, dataType domain.DataType, start, end time.Time) (json.RawMessage, error) {
	s, e := start.Format(domain.DateLayout), end.Format(domain.DateLayout)
	op := string(dataType) + " " + s + "_" + e

	if dataType != domain.DataTypeBodyBattery {
		return nil, &APIError{Kind: KindOther, Op: op, Err: fmt.Errorf("unsupported range metric %q", dataType)}
	}
	query := url.Values{}
	query.Set("startDate", s)
	query.Set("endDate", e)
	return c.get(ctx, op, "/wellness-service/wellness/bodyBattery/reports/daily", query)
}

func (c *HTTPClient) get(ctx context.Context, op, path string, query url.Values) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &APIError{Kind: KindOther, Op: op, Err: err}
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.do(req, op)
}

// do sends req and maps the outcome onto an APIError kind.
func (c *HTTPClient) do(req *http.Request, op string) (json.RawMessage, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &APIError{Kind: KindConnection, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, &APIError{Kind: KindConnection, Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &APIError{Kind: KindRateLimit, Op: op, StatusCode: resp.StatusCode, Err: errors.New("too many requests")}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &APIError{Kind: KindAuth, Op: op, StatusCode: resp.StatusCode, Err: errors.New(snippet(body))}
	case resp.StatusCode == http.StatusNoContent:
		return json.RawMessage("null"), nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &APIError{Kind: KindOther, Op: op, StatusCode: resp.StatusCode, Err: errors.New(snippet(body))}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(body) {
		return nil, &APIError{Kind: KindOther, Op: op, StatusCode: resp.StatusCode, Err: errors.New("response is not valid JSON")}
	}
	return json.RawMessage(body), nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		s = "empty response"
	}
	return s
}
