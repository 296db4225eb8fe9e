// Package github implements the GitHubClient port using the go-github library.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/nightwatch-dev/nightwatch/internal/apperror"
	"github.com/nightwatch-dev/nightwatch/internal/domain/model"
	"github.com/nightwatch-dev/nightwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.GitHubClient = (*Client)(nil)

// Client implements the driven.GitHubClient port. One Client wraps one token
// (or none) and therefore one rate-limit tier.
type Client struct {
	gh   *gh.Client
	tier model.RateTier
}

// NewClient creates an authenticated GitHub API client with the following
// transport stack:
//  1. httpcache (ETag-based conditional request caching; 304 replays are
//     free against the rate budget)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{
		gh:   client,
		tier: model.TierAuthenticated,
	}
}

// NewAnonymousClient creates an unauthenticated client operating under the
// 60 requests/hour budget. Used for subscriptions without a linked credential.
func NewAnonymousClient() *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)

	return &Client{
		gh:   gh.NewClient(rateLimitClient),
		tier: model.TierAnonymous,
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base
// URL. This constructor is intended for testing, allowing injection of an
// httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string, tier model.RateTier) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	client.BaseURL = u

	return &Client{gh: client, tier: tier}, nil
}

// Tier reports which rate-limit budget this client operates under.
func (c *Client) Tier() model.RateTier {
	return c.tier
}

// ListOpenPullRequests retrieves every open pull request for the repository,
// sorted by most recently updated, paginating through to the end.
func (c *Client) ListOpenPullRequests(ctx context.Context, repoFullName string) ([]model.PullRequest, error) {
	owner, repo, err := model.SplitRepoName(repoFullName)
	if err != nil {
		return nil, apperror.Validation("repo_full_name", err.Error())
	}

	opts := &gh.PullRequestListOptions{
		State:     "open",
		Sort:      "updated",
		Direction: "desc",
		ListOptions: gh.ListOptions{
			PerPage: 100,
		},
	}

	prs := []model.PullRequest{}

	for {
		page, resp, err := c.gh.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return nil, c.classify(err, fmt.Sprintf("listing pull requests for %s", repoFullName), repoFullName)
		}

		logRateLimit(resp, repoFullName, opts.Page, len(page))

		for _, pr := range page {
			prs = append(prs, mapPullRequest(pr))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return prs, nil
}

// VerifyToken resolves the identity behind the client's token via GET /user.
// The granted scope list comes back in the X-OAuth-Scopes response header.
func (c *Client) VerifyToken(ctx context.Context) (*driven.TokenIdentity, error) {
	user, resp, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return nil, c.classify(err, "verifying token", "")
	}

	var scopes []string
	if raw := resp.Header.Get("X-OAuth-Scopes"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				scopes = append(scopes, s)
			}
		}
	}

	return &driven.TokenIdentity{
		Username: user.GetLogin(),
		Scopes:   scopes,
	}, nil
}

// CheckRepoAccess confirms the client's token can read the repository.
// GitHub answers 404 for both "does not exist" and "no permission", so the
// two are reported identically as access_denied.
func (c *Client) CheckRepoAccess(ctx context.Context, repoFullName string) error {
	owner, repo, err := model.SplitRepoName(repoFullName)
	if err != nil {
		return apperror.Validation("repo_full_name", err.Error())
	}

	_, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden) {
			return apperror.AccessDenied(fmt.Sprintf("repository %s not found or no read permission", repoFullName))
		}
		return c.classify(err, fmt.Sprintf("checking access to %s", repoFullName), repoFullName)
	}

	return nil
}

// classify maps go-github and transport errors onto the apperror taxonomy.
func (c *Client) classify(err error, operation, repoFullName string) error {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return apperror.RateLimit(string(c.tier), rateErr.Rate.Reset.Time, err)
	}

	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		resetAt := time.Now()
		if abuseErr.RetryAfter != nil {
			resetAt = resetAt.Add(*abuseErr.RetryAfter)
		}
		return apperror.RateLimit(string(c.tier), resetAt, err)
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusUnauthorized:
			return apperror.InvalidCredential("token rejected by GitHub: invalid or expired")
		case http.StatusForbidden:
			return apperror.AccessDenied(fmt.Sprintf("%s: forbidden", operation))
		case http.StatusNotFound:
			if repoFullName != "" {
				return apperror.RepoNotFound(repoFullName)
			}
			return apperror.NotFound("resource", operation)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.Timeout(operation, err)
	}

	return apperror.Network(fmt.Errorf("%s: %w", operation, err))
}

// mapPullRequest converts a go-github PullRequest to the domain type. GetXxx
// helpers avoid nil pointer panics on sparse API responses.
func mapPullRequest(pr *gh.PullRequest) model.PullRequest {
	return model.PullRequest{
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		URL:       pr.GetHTMLURL(),
		Branch:    pr.GetHead().GetRef(),
		UpdatedAt: pr.GetUpdatedAt().Time,
	}
}

// logRateLimit logs the rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 10 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
