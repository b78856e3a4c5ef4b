// Package client is the browser-side data access layer as a Go HTTP client.
// Every call carries a fixed deadline and reports connectivity loss as
// apperr.Offline so callers can offer retry instead of data-loss framing.
package client

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
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/concern-cloud/internal/apperr"
	"github.com/xaenox/concern-cloud/internal/models"
)

const (
	DefaultTimeout        = 10 * time.Second
	DefaultThemingTimeout = 90 * time.Second

	msgTimedOut     = "Request timed out. Please check your connection."
	msgNoConnection = "No internet connection. Changes will be available when the connection is restored."
)

type Options struct {
	BaseURL        string
	Timeout        time.Duration
	ThemingTimeout time.Duration
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

type Client struct {
	baseURL        string
	http           *http.Client
	timeout        time.Duration
	themingTimeout time.Duration
	logger         *zap.Logger
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ThemingTimeout <= 0 {
		opts.ThemingTimeout = DefaultThemingTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		http:           opts.HTTPClient,
		timeout:        opts.Timeout,
		themingTimeout: opts.ThemingTimeout,
		logger:         opts.Logger,
	}
}

type FlowInput struct {
	Flowchart          string    `json:"flowchart"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	SubmissionInstance int       `json:"submissionInstance"`
	Version            int       `json:"version"`
	CreatedDate        time.Time `json:"createdDate,omitempty"`
}

type ConcernInput struct {
	FlowID      string   `json:"flowId"`
	SessionID   string   `json:"sessionId"`
	Text        string   `json:"text"`
	CommentType string   `json:"commentType,omitempty"`
	NodeIDs     []string `json:"nodeIds"`
	NodeLabels  []string `json:"nodeLabels"`
}

type dataEnvelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

func (c *Client) ListFlows(ctx context.Context) ([]models.Flow, error) {
	var flows []models.Flow
	err := c.do(ctx, c.timeout, http.MethodGet, "/flows", nil, nil, &flows)
	return flows, err
}

func (c *Client) ListFlowSummaries(ctx context.Context) ([]models.FlowSummary, error) {
	var summaries []models.FlowSummary
	err := c.do(ctx, c.timeout, http.MethodGet, "/flows", url.Values{"view": {"summary"}}, nil, &summaries)
	return summaries, err
}

func (c *Client) GetFlow(ctx context.Context, id string) (*models.Flow, error) {
	var flow models.Flow
	if err := c.do(ctx, c.timeout, http.MethodGet, "/flows/"+url.PathEscape(id), nil, nil, &flow); err != nil {
		return nil, err
	}
	return &flow, nil
}

func (c *Client) CreateFlow(ctx context.Context, in FlowInput) (*models.Flow, error) {
	var flow models.Flow
	if err := c.do(ctx, c.timeout, http.MethodPost, "/flows", nil, in, &flow); err != nil {
		return nil, err
	}
	return &flow, nil
}

func (c *Client) UpdateFlowchart(ctx context.Context, id, flowchart string) (*models.Flow, error) {
	var flow models.Flow
	body := map[string]string{"id": id, "flowchart": flowchart}
	if err := c.do(ctx, c.timeout, http.MethodPatch, "/flows", nil, body, &flow); err != nil {
		return nil, err
	}
	return &flow, nil
}

func (c *Client) CreateConcern(ctx context.Context, in ConcernInput) (*models.Concern, error) {
	var concern models.Concern
	if err := c.do(ctx, c.timeout, http.MethodPost, "/concerns", nil, in, &concern); err != nil {
		return nil, err
	}
	return &concern, nil
}

func (c *Client) ListConcerns(ctx context.Context, flowID, sessionID string) ([]models.Concern, error) {
	if flowID == "" || sessionID == "" {
		return nil, apperr.Invalid("Both flowId and sessionId are required")
	}
	var concerns []models.Concern
	q := url.Values{"flowId": {flowID}, "sessionId": {sessionID}}
	err := c.do(ctx, c.timeout, http.MethodGet, "/concerns", q, nil, &concerns)
	return concerns, err
}

func (c *Client) DeleteConcern(ctx context.Context, id string) error {
	return c.do(ctx, c.timeout, http.MethodDelete, "/concerns", url.Values{"commentId": {id}}, nil, nil)
}

// Theme requests a grouping. It uses the longer theming deadline.
func (c *Client) Theme(ctx context.Context, concerns []models.Concern, sessionID string) (*models.ThemeSet, error) {
	body := map[string]any{
		"concerns":  models.ThemedConcerns(concerns),
		"sessionId": sessionID,
	}
	var set models.ThemeSet
	if err := c.do(ctx, c.themingTimeout, http.MethodPost, "/theming", nil, body, &set); err != nil {
		return nil, err
	}
	if err := set.Validate(); err != nil {
		return nil, apperr.Processing("Received invalid data from processing service", err)
	}
	return &set, nil
}

func (c *Client) ListThemeComments(ctx context.Context, flowID, sessionID, themeName string) ([]models.ThemeComment, error) {
	var out dataEnvelope[[]models.ThemeComment]
	q := url.Values{"flowId": {flowID}, "sessionId": {sessionID}, "themeName": {themeName}}
	if err := c.do(ctx, c.timeout, http.MethodGet, "/themeComments", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) AddThemeComment(ctx context.Context, flowID, sessionID, themeName, text string) (*models.ThemeComment, error) {
	body := map[string]string{
		"flowId":      flowID,
		"sessionId":   sessionID,
		"themeName":   themeName,
		"commentText": text,
	}
	var out dataEnvelope[models.ThemeComment]
	if err := c.do(ctx, c.timeout, http.MethodPost, "/themeComments", nil, body, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, query url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return apperr.Internalf(err, "encode %s %s", method, path)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return apperr.Internalf(err, "build %s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(ctx, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeFailure(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return c.transportError(ctx, method, path, err)
		}
		return apperr.Processing("Received invalid data from server", err)
	}
	return nil
}

func (c *Client) transportError(ctx context.Context, method, path string, err error) error {
	c.logger.Warn("Request failed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Error(err))

	if errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeout(err) {
		return apperr.OfflineErr(msgTimedOut, err)
	}
	if errors.Is(err, context.Canceled) {
		return apperr.Wrap(apperr.Internal, "request canceled", err)
	}
	return apperr.OfflineErr(msgNoConnection, err)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func decodeFailure(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var f apperr.Failure
	if json.Unmarshal(raw, &f) == nil && f.Code != "" {
		return apperr.FromFailure(f)
	}

	msg := fmt.Sprintf("Error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	var plain struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &plain) == nil {
		switch {
		case plain.Message != "":
			msg = plain.Message
		case plain.Error != "":
			msg = plain.Error
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperr.New(apperr.NotFound, msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperr.New(apperr.RateLimited, msg)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return apperr.New(apperr.InvalidInput, msg)
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway || resp.StatusCode == http.StatusGatewayTimeout:
		return apperr.New(apperr.UpstreamError, msg)
	default:
		return apperr.New(apperr.Internal, msg)
	}
}
