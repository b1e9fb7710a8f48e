package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nao1215/mentionscan/internal/model"
	"github.com/nao1215/mentionscan/internal/session"
)

// loginRequest is the JSON body for the session endpoint.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the JSON body the session endpoint returns.
// ExpiresAt is optional; when the service omits it the session layer
// falls back to the token's own expiry claim.
type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// countResponse is the JSON body of the count endpoint. Count is a
// pointer so a missing field is distinguishable from a legitimate zero.
type countResponse struct {
	Count *int `json:"count"`
}

// Login exchanges credentials for a session. It implements
// session.Authenticator, so a Client plugs directly into the session
// manager.
func (c *Client) Login(ctx context.Context, username, password string) (session.Session, error) {
	payload, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, loginPath, nil, session.Session{}, bytes.NewReader(payload))
	if err != nil {
		return session.Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return session.Session{}, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return session.Session{}, classifyStatus(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to read login response: %w", err)
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return session.Session{}, fmt.Errorf("%w: undecodable login body: %v", ErrMalformedResponse, err)
	}
	if lr.Token == "" {
		return session.Session{}, fmt.Errorf("%w: login response has no token", ErrMalformedResponse)
	}

	return session.NewSession(lr.Token, sessionCookie(resp), username, lr.ExpiresAt), nil
}

// sessionCookie extracts the service's session cookie from a login
// response, formatted ready for a Cookie header. Empty when the service
// is token-only.
func sessionCookie(resp *http.Response) string {
	for _, ck := range resp.Cookies() {
		if ck.Name == sessionCookieName {
			return ck.Name + "=" + ck.Value
		}
	}
	return ""
}

// Count asks the primary count endpoint how many mentions of term exist
// inside r. A zero return with a nil error is a real result: the term
// was searched and nothing mentioned it.
func (c *Client) Count(ctx context.Context, sess session.Session, term string, r model.Range) (int, error) {
	query := url.Values{}
	query.Set("term", term)
	query.Set("from", r.Start.Format(time.RFC3339))
	query.Set("to", r.End.Format(time.RFC3339))

	req, err := c.newRequest(ctx, http.MethodGet, countPath, query, sess, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("count request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return 0, classifyStatus(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, fmt.Errorf("failed to read count response: %w", err)
	}

	var cr countResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return 0, fmt.Errorf("%w: undecodable count body: %v", ErrMalformedResponse, err)
	}
	if cr.Count == nil {
		return 0, fmt.Errorf("%w: count field missing", ErrMalformedResponse)
	}
	if *cr.Count < 0 {
		return 0, fmt.Errorf("%w: negative count %d", ErrMalformedResponse, *cr.Count)
	}
	return *cr.Count, nil
}
