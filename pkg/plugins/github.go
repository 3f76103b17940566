package plugins

import (
	"context"
	"fmt"
	"io"
	"time"

	"resty.dev/v3"
)

const (
	// DefaultAPIURL is the GitHub REST API endpoint.
	DefaultAPIURL = "https://api.github.com"

	// DefaultDownloadURL serves release assets.
	DefaultDownloadURL = "https://github.com"
)

// ReleaseSource fetches release metadata and assets.
type ReleaseSource interface {
	// LatestTag returns the tag of the most recent release.
	LatestTag(ctx context.Context, owner, repo string) (string, error)

	// Open streams a release asset. The caller closes the reader.
	Open(ctx context.Context, owner, repo, tag, file string) (io.ReadCloser, error)
}

// GitHubOptions configures a GitHub release client.
type GitHubOptions struct {
	APIURL      string
	DownloadURL string

	// Token is sent as a bearer token when set, typically from GITHUB_TOKEN.
	Token string

	Timeout time.Duration
}

// GitHubClient reads releases from GitHub.
type GitHubClient struct {
	api      *resty.Client
	download *resty.Client
}

// NewGitHubClient creates a client. Zero options select the public
// endpoints.
func NewGitHubClient(opts GitHubOptions) *GitHubClient {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.DownloadURL == "" {
		opts.DownloadURL = DefaultDownloadURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}

	api := resty.New().
		SetBaseURL(opts.APIURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", "2022-11-28")
	download := resty.New().
		SetBaseURL(opts.DownloadURL).
		SetTimeout(opts.Timeout)

	if opts.Token != "" {
		api.SetAuthToken(opts.Token)
		download.SetAuthToken(opts.Token)
	}

	return &GitHubClient{api: api, download: download}
}

// Close releases idle connections.
func (c *GitHubClient) Close() error {
	if err := c.api.Close(); err != nil {
		return err
	}
	return c.download.Close()
}

type githubRelease struct {
	TagName string `json:"tag_name"`
}

// LatestTag implements ReleaseSource.
func (c *GitHubClient) LatestTag(ctx context.Context, owner, repo string) (string, error) {
	var release githubRelease

	res, err := c.api.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"owner": owner, "repo": repo}).
		SetResult(&release).
		Get("/repos/{owner}/{repo}/releases/latest")
	if err != nil {
		return "", fmt.Errorf("failed to fetch latest release of %s/%s: %w", owner, repo, err)
	}
	if res.IsError() {
		return "", fmt.Errorf("failed to fetch latest release of %s/%s: %s", owner, repo, res.Status())
	}
	if release.TagName == "" {
		return "", fmt.Errorf("latest release of %s/%s has no tag", owner, repo)
	}
	return release.TagName, nil
}

// Open implements ReleaseSource.
func (c *GitHubClient) Open(ctx context.Context, owner, repo, tag, file string) (io.ReadCloser, error) {
	res, err := c.download.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetPathParams(map[string]string{"owner": owner, "repo": repo, "tag": tag, "file": file}).
		Get("/{owner}/{repo}/releases/download/{tag}/{file}")
	if err != nil {
		return nil, fmt.Errorf("failed to download %s from %s/%s@%s: %w", file, owner, repo, tag, err)
	}
	body := res.RawResponse.Body
	if res.IsError() {
		body.Close()
		return nil, fmt.Errorf("failed to download %s from %s/%s@%s: %s", file, owner, repo, tag, res.Status())
	}
	return body, nil
}
