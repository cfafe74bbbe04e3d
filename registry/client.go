package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appErrors "github.com/vascofialho-nl/releasecheck/errors"
	"github.com/vascofialho-nl/releasecheck/models"
)

const maxBodyBytes = 1 << 20

var _ Client = (*DefaultClient)(nil)

// DefaultClient is the release registry API client.
type DefaultClient struct {
	apiBase      string
	homepageBase string
	owner        string
	repository   string
	token        string
	userAgent    string
	probeTimeout time.Duration
	fetchTimeout time.Duration
	http         *http.Client
}

type Params struct {
	Config     Config
	Owner      string
	Repository string
	UserAgent  string
}

// New creates a new registry client for one repository.
func New(p Params) *DefaultClient {
	p.Config.Defaults()
	return &DefaultClient{
		apiBase:      strings.TrimRight(strings.TrimSpace(p.Config.APIBase), "/"),
		homepageBase: strings.TrimRight(strings.TrimSpace(p.Config.HomepageBase), "/"),
		owner:        strings.TrimSpace(p.Owner),
		repository:   strings.TrimSpace(p.Repository),
		token:        strings.TrimSpace(p.Config.Token),
		userAgent:    p.UserAgent,
		probeTimeout: p.Config.ProbeTimeout,
		fetchTimeout: p.Config.FetchTimeout,
		http:         p.Config.HTTPClient,
	}
}

// UserAgent formats the "{HostName}/{HostVersion}" identification header.
func UserAgent(hostName, hostVersion string) string {
	return strings.TrimSpace(hostName) + "/" + strings.TrimSpace(hostVersion)
}

// StripTagPrefix removes exactly one leading "v" from a release tag.
func StripTagPrefix(tag string) string {
	return strings.TrimPrefix(strings.TrimSpace(tag), "v")
}

// LatestReleaseURL is the registry resource both calls target.
func (c *DefaultClient) LatestReleaseURL() string {
	return fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.apiBase, c.owner, c.repository)
}

func (c *DefaultClient) RepoURL() string {
	return fmt.Sprintf("%s/%s/%s", c.homepageBase, c.owner, c.repository)
}

func (c *DefaultClient) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	resp, err := c.get(ctx)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode != http.StatusOK {
		return appErrors.Network(fmt.Sprintf("registry: probe status %d", resp.StatusCode), nil)
	}
	return nil
}

func (c *DefaultClient) LatestRelease(ctx context.Context) (models.RemoteRelease, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	resp, err := c.get(ctx)
	if err != nil {
		return models.RemoteRelease{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.RemoteRelease{}, appErrors.Network("registry: read latest release", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.RemoteRelease{}, appErrors.Network(
			fmt.Sprintf("registry: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var payload latestRelease
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.RemoteRelease{}, appErrors.Parse("registry: decode latest release", err)
	}
	tag := strings.TrimSpace(payload.TagName)
	if tag == "" {
		return models.RemoteRelease{}, appErrors.Parse("registry: latest release has no tag_name", nil)
	}

	release := models.RemoteRelease{
		TagName: tag,
		Version: StripTagPrefix(tag),
		Name:    payload.Name,
		Body:    payload.Body,
		HTMLURL: payload.HTMLURL,
	}
	if t, err := time.Parse(time.RFC3339, payload.PublishedAt); err == nil {
		release.PublishedAt = t
	}
	return release, nil
}

func (c *DefaultClient) get(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.LatestReleaseURL(), nil)
	if err != nil {
		return nil, appErrors.Config("registry: build request", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, appErrors.Network("registry: request latest release", err)
	}
	return resp, nil
}
