package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"

	"github.com/hpungsan/casefile/internal/errors"
	"github.com/hpungsan/casefile/internal/textmatch"
)

// DefaultTimeout bounds every remote call.
const DefaultTimeout = 8 * time.Second

// ClientConfig configures the HTTP authority client.
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// HTTPClient is the transport used when Token is empty, and the base
	// transport under the oauth2 client otherwise.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client talks to the case-management system's REST API:
//
//	GET  /filings?conversationId=&subject=
//	GET  /documents/{id}
//	GET  /cases/{caseId}/documents?subject=
//	POST /cases/{caseId}/documents
//	POST /cases/{caseId}/documents/{documentId}/versions
type Client struct {
	base *url.URL
	http *http.Client
	cb   *gobreaker.CircuitBreaker
	log  zerolog.Logger
}

// NewClient builds a Client. Requests carry the token as an OAuth2 bearer
// token and go through a circuit breaker; a NOT_FOUND answer never trips it.
func NewClient(cfg ClientConfig) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid remote_url %q", cfg.BaseURL))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	httpClient := &http.Client{}
	if cfg.HTTPClient != nil {
		cp := *cfg.HTTPClient
		httpClient = &cp
	}
	if cfg.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.Token,
			TokenType:   "Bearer",
		}))
	}
	httpClient.Timeout = cfg.Timeout

	log := cfg.Logger.With().Str("component", "remote").Logger()
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "case-remote",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errors.ErrNotFound) || errors.Is(err, errors.ErrInvalidRequest)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return &Client{base: base, http: httpClient, cb: cb, log: log}, nil
}

// FindFiling implements Authority.
func (c *Client) FindFiling(ctx context.Context, conversationID, subject string) (Filing, error) {
	q := url.Values{}
	if conversationID != "" {
		q.Set("conversationId", conversationID)
	}
	if subject != "" {
		q.Set("subject", subject)
	}
	var f Filing
	if err := c.do(ctx, "find filing", http.MethodGet, "/filings", q, nil, &f); err != nil {
		return Filing{}, err
	}
	if f.CaseID == "" {
		return Filing{}, errors.NewNotFound("filing")
	}
	return f, nil
}

// DocumentExists implements Authority.
func (c *Client) DocumentExists(ctx context.Context, documentID string) (bool, error) {
	err := c.do(ctx, "document exists", http.MethodGet, "/documents/"+url.PathEscape(documentID), nil, nil, nil)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, errors.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// FindDocument implements Authority. The first document whose normalized
// subject equals the normalized subject wins.
func (c *Client) FindDocument(ctx context.Context, caseID, subject string) (Document, bool, error) {
	q := url.Values{}
	q.Set("subject", subject)
	var out struct {
		Documents []Document `json:"documents"`
	}
	err := c.do(ctx, "find document", http.MethodGet, "/cases/"+url.PathEscape(caseID)+"/documents", q, nil, &out)
	if errors.Is(err, errors.ErrNotFound) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, err
	}
	want := textmatch.NormalizeSubject(subject)
	for _, d := range out.Documents {
		if textmatch.NormalizeSubject(d.Subject) == want {
			if d.CaseID == "" {
				d.CaseID = caseID
			}
			return d, true, nil
		}
	}
	return Document{}, false, nil
}

// CreateDocument implements Authority.
func (c *Client) CreateDocument(ctx context.Context, req CreateDocumentRequest) (Document, error) {
	var d Document
	err := c.do(ctx, "create document", http.MethodPost, "/cases/"+url.PathEscape(req.CaseID)+"/documents", nil, req, &d)
	if err != nil {
		return Document{}, err
	}
	return d, nil
}

// CreateVersion implements Authority.
func (c *Client) CreateVersion(ctx context.Context, req CreateVersionRequest) (Document, error) {
	var d Document
	path := "/cases/" + url.PathEscape(req.CaseID) + "/documents/" + url.PathEscape(req.DocumentID) + "/versions"
	if err := c.do(ctx, "create version", http.MethodPost, path, nil, req, &d); err != nil {
		return Document{}, err
	}
	return d, nil
}

// do runs one request through the breaker and decodes a JSON response into
// out (when non-nil). 404 maps to NOT_FOUND, other failures to
// REMOTE_UNAVAILABLE.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, op, method, path, query, body, out)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return errors.NewRemoteUnavailable(op, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.NewInternal(err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return errors.NewInternal(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("op", op).Msg("remote request failed")
		return errors.NewRemoteUnavailable(op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.NewNotFound(op)
	case resp.StatusCode == http.StatusBadRequest:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.NewInvalidRequest(fmt.Sprintf("%s rejected: %s", op, strings.TrimSpace(string(msg))))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return errors.NewRemoteUnavailable(op, fmt.Errorf("status %d", resp.StatusCode))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewRemoteUnavailable(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
