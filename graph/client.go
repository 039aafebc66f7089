// Copyright (c) 2024 the libnss-aad-go authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to
// deal in the Software without restriction, including without limitation the
// rights to use, copy, modify, merge, publish, distribute, sublicense, and/or
// sell copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER
// DEALINGS IN THE SOFTWARE.

// Package graph talks to the legacy Azure AD Graph API. A Client is built,
// used and discarded within a single NSS lookup; nothing is cached between
// lookups and the bearer token obtained at construction never outlives the
// client that holds it.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	defaultLoginBase = "https://login.microsoftonline.com"
	defaultGraphBase = "https://graph.windows.net"

	tokenAPIVersion = "1.0"
	graphAPIVersion = "1.6"

	// graphResource is the OAuth2 resource the client-credentials grant
	// requests a token for.
	graphResource = "https://graph.windows.net/"

	// maxPageRetries bounds replays of a page URL whose skiptoken the
	// directory reports as expired. The budget is per listing call, not
	// per page.
	maxPageRetries = 5

	defaultRetryInterval = 200 * time.Millisecond
)

// Config carries everything a Client needs. Credentials come from the
// module configuration; the remaining fields exist for tests and
// sovereign-cloud deployments.
type Config struct {
	ClientID     string
	ClientSecret string
	Tenant       string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// LoginBaseURL defaults to the public token endpoint host.
	LoginBaseURL string
	// GraphBaseURL defaults to the public Graph host.
	GraphBaseURL string
	// Clock paces the expired-page-token retry. Defaults to the real clock.
	Clock clockwork.Clock
	// RetryInterval is the pause between page replays.
	RetryInterval time.Duration
	// Logger receives debug detail. The zero value is silent.
	Logger zerolog.Logger
}

func (cfg *Config) setDefaults() {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.LoginBaseURL == "" {
		cfg.LoginBaseURL = defaultLoginBase
	}
	if cfg.GraphBaseURL == "" {
		cfg.GraphBaseURL = defaultGraphBase
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
}

func (cfg *Config) validate() error {
	switch {
	case cfg.ClientID == "":
		return trace.BadParameter("ClientID must be set")
	case cfg.ClientSecret == "":
		return trace.BadParameter("ClientSecret must be set")
	case cfg.Tenant == "":
		return trace.BadParameter("Tenant must be set")
	}
	return nil
}

// Client issues bearer-authorized queries against one tenant.
type Client struct {
	httpClient    *http.Client
	token         string
	tenantBase    *url.URL
	clock         clockwork.Clock
	retryInterval time.Duration
	log           zerolog.Logger
}

// NewClient performs the client-credentials grant and returns a client
// bound to the resulting token.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, trace.Wrap(err)
	}
	base, err := url.Parse(cfg.GraphBaseURL)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	base = base.JoinPath(cfg.Tenant)

	token, err := requestToken(ctx, &cfg)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &Client{
		httpClient:    cfg.HTTPClient,
		token:         token,
		tenantBase:    base,
		clock:         cfg.Clock,
		retryInterval: cfg.RetryInterval,
		log:           cfg.Logger,
	}, nil
}

func requestToken(ctx context.Context, cfg *Config) (string, error) {
	uri := fmt.Sprintf("%s/%s/oauth2/token?api-version=%s",
		cfg.LoginBaseURL, url.PathEscape(cfg.Tenant), tokenAPIVersion)
	form := url.Values{
		"resource":      {graphResource},
		"grant_type":    {"client_credentials"},
		"client_id":     {cfg.ClientID},
		"client_secret": {cfg.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, strings.NewReader(form.Encode()))
	if err != nil {
		return "", trace.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		return "", trace.Wrap(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", trace.Wrap(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", trace.Wrap(&HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)})
	}
	var grant struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &grant); err != nil {
		return "", trace.Wrap(ErrBadResponse, "token response is not JSON")
	}
	if grant.AccessToken == "" {
		return "", trace.Wrap(ErrNoAccessToken)
	}
	return grant.AccessToken, nil
}

// endpointURL builds {graph}/{tenant}/{elem...}?api-version=1.6 plus any
// extra query parameters. Path elements are escaped individually.
func (c *Client) endpointURL(q url.Values, elem ...string) string {
	u := c.tenantBase.JoinPath(elem...)
	if q == nil {
		q = url.Values{}
	}
	q.Set("api-version", graphAPIVersion)
	u.RawQuery = q.Encode()
	return u.String()
}

// get performs one bearer-authorized GET and returns the raw body. Any
// non-2xx answer becomes an HTTPStatusError carrying the body text, which
// callers inspect for retryability.
func (c *Client) get(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, trace.Wrap(&HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)})
	}
	return body, nil
}

// User fetches the named user directly and validates its record.
func (c *Client) User(ctx context.Context, name string) (*User, error) {
	body, err := c.get(ctx, c.endpointURL(nil, "users", name))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var payload userPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, trace.Wrap(ErrBadResponse, "user object is not JSON")
	}
	return payload.record()
}

// UserBySID resolves a user through a security-identifier filter query.
// Exactly one match is required.
func (c *Client) UserBySID(ctx context.Context, sid string) (*User, error) {
	payload, err := singleByFilter[userPayload](c, ctx, "users", sidFilter(sid))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return payload.record()
}

// GroupByName resolves a group through a display-name filter query.
// Exactly one match is required.
func (c *Client) GroupByName(ctx context.Context, name string) (*Group, error) {
	filter := fmt.Sprintf("displayName eq '%s'", escapeFilterValue(name))
	payload, err := singleByFilter[groupPayload](c, ctx, "groups", filter)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return payload.record()
}

// GroupBySID resolves a group through a security-identifier filter query.
// Exactly one match is required.
func (c *Client) GroupBySID(ctx context.Context, sid string) (*Group, error) {
	payload, err := singleByFilter[groupPayload](c, ctx, "groups", sidFilter(sid))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return payload.record()
}

// singleByFilter runs a filter query that must match exactly one object.
func singleByFilter[T any](c *Client, ctx context.Context, collection, filter string) (*T, error) {
	uri := c.endpointURL(url.Values{"$filter": {filter}}, collection)
	body, err := c.get(ctx, uri)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var page oDataListResponse[T]
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, trace.Wrap(ErrBadResponse, "%s listing is not JSON", collection)
	}
	switch len(page.Value) {
	case 0:
		return nil, trace.Wrap(ErrNotFound)
	case 1:
		return &page.Value[0], nil
	default:
		return nil, trace.Wrap(ErrTooManyResults)
	}
}

// GroupMembers lists the direct members of a group by its object id.
// Member objects that fail user validation (non-user members, principals
// without a usable SID) are dropped; membership tolerates partial
// corruption where single-object lookups do not.
func (c *Client) GroupMembers(ctx context.Context, objectID string) ([]User, error) {
	body, err := c.get(ctx, c.endpointURL(nil, "groups", objectID, "members"))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var page oDataListResponse[userPayload]
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, trace.Wrap(ErrBadResponse, "member listing is not JSON")
	}
	members := make([]User, 0, len(page.Value))
	for i := range page.Value {
		rec, err := page.Value[i].record()
		if err != nil {
			c.log.Debug().Err(err).Msg("dropping unusable group member")
			continue
		}
		members = append(members, *rec)
	}
	return members, nil
}

// UserGroups lists every group the named user belongs to, following
// odata.nextLink until the directory reports no further page. Records are
// accumulated in page order; ones failing validation are dropped the same
// way GroupMembers drops them. A page answered with an expired-skiptoken
// error is replayed at the same URL, at most maxPageRetries times across
// the whole call; every other failure propagates at once.
func (c *Client) UserGroups(ctx context.Context, name string) ([]Group, error) {
	uri := c.endpointURL(nil, "users", name, "memberOf")
	var groups []Group
	retries := maxPageRetries
	for uri != "" {
		body, err := c.get(ctx, uri)
		if err != nil {
			var httpErr *HTTPStatusError
			if errors.As(err, &httpErr) && httpErr.expiredPageToken() && retries > 0 {
				retries--
				c.log.Debug().Int("remaining", retries).Msg("page token expired, replaying page")
				c.clock.Sleep(c.retryInterval)
				continue
			}
			return nil, trace.Wrap(err)
		}
		var page oDataPage
		if err := json.Unmarshal(body, &page); err != nil || page.Value == nil {
			return nil, trace.Wrap(ErrBadResponse, "membership page is not JSON")
		}
		var payloads []groupPayload
		if err := json.Unmarshal(page.Value, &payloads); err != nil {
			return nil, trace.Wrap(ErrBadResponse, "membership page value is not a list")
		}
		for i := range payloads {
			rec, err := payloads[i].record()
			if err != nil {
				// memberOf also yields non-group directory objects;
				// they fail validation and are skipped with the rest.
				c.log.Debug().Err(err).Msg("dropping unusable membership record")
				continue
			}
			groups = append(groups, *rec)
		}
		uri = c.resolveNextLink(page.NextLink)
	}
	return groups, nil
}

// resolveNextLink turns a continuation link into a fetchable URL. The
// legacy Graph emits tenant-relative links without an api-version.
func (c *Client) resolveNextLink(link string) string {
	if link == "" {
		return ""
	}
	ref, err := url.Parse(link)
	if err != nil {
		c.log.Debug().Str("link", link).Msg("discarding unparseable continuation link")
		return ""
	}
	// Tenant-relative links resolve against the tenant path as a directory.
	base := *c.tenantBase
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	u := base.ResolveReference(ref)
	q := u.Query()
	if q.Get("api-version") == "" {
		q.Set("api-version", graphAPIVersion)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func sidFilter(sid string) string {
	return fmt.Sprintf("onPremisesSecurityIdentifier eq '%s'", escapeFilterValue(sid))
}

// escapeFilterValue doubles single quotes so a value can be interpolated
// into an OData filter literal.
func escapeFilterValue(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
