package registry

import (
	"context"

	"github.com/vascofialho-nl/releasecheck/models"
)

// Client talks to the release registry for a single repository.
type Client interface {
	// Probe returns nil only when the registry answers the latest-release
	// resource with 200 inside the probe timeout.
	Probe(ctx context.Context) error
	// LatestRelease fetches and decodes the latest release.
	LatestRelease(ctx context.Context) (models.RemoteRelease, error)
	// RepoURL is the human-facing repository homepage.
	RepoURL() string
}

type latestRelease struct {
	TagName     string `json:"tag_name"`
	Name        string `json:"name"`
	Body        string `json:"body"`
	HTMLURL     string `json:"html_url"`
	PublishedAt string `json:"published_at"`
}
