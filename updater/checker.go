package updater

import (
	"context"
	"strings"
	"time"

	"github.com/vascofialho-nl/releasecheck/clock"
	appErrors "github.com/vascofialho-nl/releasecheck/errors"
	"github.com/vascofialho-nl/releasecheck/logger"
	"github.com/vascofialho-nl/releasecheck/manifest"
	"github.com/vascofialho-nl/releasecheck/models"
	"github.com/vascofialho-nl/releasecheck/registry"
	"github.com/vascofialho-nl/releasecheck/store"
)

var _ Checker = (*DefaultChecker)(nil)

const DefaultAvailabilityTTL = 60 * time.Second

// DefaultChecker implements Checker against a registry client and a manifest
// reader. It keeps no state between calls other than what it caches in Store.
type DefaultChecker struct {
	identity        models.ReleaseIdentity
	registry        registry.Client
	manifest        manifest.Reader
	store           store.Store
	clock           clock.Clock
	logger          logger.Logger
	availabilityTTL time.Duration
	releaseTTL      time.Duration
	author          string
	description     string
}

type Params struct {
	Identity models.ReleaseIdentity
	Registry registry.Client
	Manifest manifest.Reader
	// Store caches availability and releases between checks. Optional.
	Store           store.Store
	Clock           clock.Clock
	Logger          logger.Logger
	AvailabilityTTL time.Duration
	// ReleaseTTL caches the latest release. Zero fetches on every check.
	ReleaseTTL  time.Duration
	Author      string
	Description string
}

func New(p Params) *DefaultChecker {
	log := p.Logger
	if log == nil {
		log = logger.NewNop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}
	ttl := p.AvailabilityTTL
	if ttl <= 0 {
		ttl = DefaultAvailabilityTTL
	}
	return &DefaultChecker{
		identity:        p.Identity,
		registry:        p.Registry,
		manifest:        p.Manifest,
		store:           p.Store,
		clock:           clk,
		logger:          log.With("plugin", p.Identity.PluginID(), "repository", p.Identity.RepoPath()),
		availabilityTTL: ttl,
		releaseTTL:      p.ReleaseTTL,
		author:          p.Author,
		description:     p.Description,
	}
}

// Identity returns the release identity the checker was built with.
func (c *DefaultChecker) Identity() models.ReleaseIdentity {
	return c.identity
}

func (c *DefaultChecker) CheckRepositoryAvailability(ctx context.Context) bool {
	key := store.AvailabilityKeyPrefix + c.identity.RepoPath()
	if c.store != nil {
		var cached bool
		found, err := c.store.GetTransient(ctx, key, &cached)
		if err != nil {
			c.logger.WarnW("availability cache read failed", "error", err)
		} else if found {
			return cached
		}
	}

	available := true
	if err := c.registry.Probe(ctx); err != nil {
		c.logger.DebugW("registry unavailable", "error", err, "code", appErrors.CodeOf(err))
		available = false
	}

	if c.store != nil {
		if err := c.store.SetTransient(ctx, key, available, c.availabilityTTL); err != nil {
			c.logger.WarnW("availability cache write failed", "error", err)
		}
	}
	return available
}

func (c *DefaultChecker) GetLocalVersion(ctx context.Context) (string, error) {
	if c.manifest == nil {
		return "", appErrors.Config("no manifest reader configured", nil)
	}
	version, err := c.manifest.ReadVersion(ctx)
	if err != nil {
		if appErrors.IsCode(err, appErrors.CodeConfig) {
			return "", err
		}
		return "", appErrors.Config("read local version", err)
	}
	return version, nil
}

func (c *DefaultChecker) GetLatestRemoteRelease(ctx context.Context) (string, bool) {
	rel, ok := c.latestRelease(ctx)
	if !ok {
		return "", false
	}
	return rel.Version, true
}

func (c *DefaultChecker) CheckForUpdate(ctx context.Context, t *models.UpdateTransient) (*models.UpdateDescriptor, error) {
	if !t.HasChecked() {
		c.outcome(OutcomeSkipped)
		return nil, nil
	}
	if !c.CheckRepositoryAvailability(ctx) {
		c.outcome(OutcomeUnavailable)
		return nil, nil
	}

	local, err := c.GetLocalVersion(ctx)
	if err != nil {
		c.logger.ErrorW("update check failed", "outcome", string(OutcomeConfigError), "error", err)
		return nil, err
	}

	remote, ok := c.GetLatestRemoteRelease(ctx)
	if !ok {
		c.outcome(OutcomeNoRemote, "local_version", local)
		return nil, nil
	}

	newer, err := IsNewer(local, remote)
	if err != nil {
		c.logger.WarnW("version comparison failed", "local_version", local, "remote_version", remote, "error", err)
		c.outcome(OutcomeInvalidVersion, "local_version", local, "remote_version", remote)
		return nil, nil
	}
	if !newer {
		c.outcome(OutcomeUpToDate, "local_version", local, "remote_version", remote)
		return nil, nil
	}

	pluginID := c.identity.PluginID()
	d := &models.UpdateDescriptor{
		Slug:       pluginID,
		Plugin:     pluginID,
		NewVersion: remote,
		URL:        c.registry.RepoURL(),
		Package:    c.packageURL(remote),
	}
	c.outcome(OutcomeUpdateAvailable, "local_version", local, "remote_version", remote)
	return d, nil
}

func (c *DefaultChecker) DescribeRelease(ctx context.Context, slug string) (*models.ReleaseInfo, bool) {
	if strings.TrimSpace(slug) != c.identity.Repository {
		return nil, false
	}
	if !c.CheckRepositoryAvailability(ctx) {
		return nil, false
	}
	rel, ok := c.latestRelease(ctx)
	if !ok {
		return nil, false
	}

	download := c.packageURL(rel.Version)
	name := c.identity.Name
	if name == "" {
		name = c.identity.Repository
	}
	return &models.ReleaseInfo{
		Name:         name,
		Slug:         c.identity.Repository,
		Version:      rel.Version,
		Author:       c.author,
		Homepage:     c.registry.RepoURL(),
		DownloadLink: download,
		Trunk:        download,
		Sections: models.Sections{
			Description: RenderDescription(c.description),
			Changelog:   RenderChangelog(rel.Version, rel.Body),
		},
	}, true
}

func (c *DefaultChecker) ApplyToTransient(ctx context.Context, t *models.UpdateTransient) (*models.UpdateTransient, error) {
	if t == nil {
		return nil, nil
	}
	d, err := c.CheckForUpdate(ctx, t)
	if err != nil {
		return t, err
	}
	if !t.HasChecked() {
		return t, nil
	}
	t.SetResponse(c.identity.PluginID(), d)
	return t, nil
}

func (c *DefaultChecker) latestRelease(ctx context.Context) (models.RemoteRelease, bool) {
	key := store.ReleaseKeyPrefix + c.identity.RepoPath()
	if c.store != nil && c.releaseTTL > 0 {
		var cached models.RemoteRelease
		found, err := c.store.GetTransient(ctx, key, &cached)
		if err != nil {
			c.logger.WarnW("release cache read failed", "error", err)
		} else if found && cached.Version != "" {
			return cached, true
		}
	}

	rel, err := c.registry.LatestRelease(ctx)
	if err != nil {
		c.logger.DebugW("latest release unavailable", "error", err, "code", appErrors.CodeOf(err))
		return models.RemoteRelease{}, false
	}

	if c.store != nil && c.releaseTTL > 0 {
		if err := c.store.SetTransient(ctx, key, rel, c.releaseTTL); err != nil {
			c.logger.WarnW("release cache write failed", "error", err)
		}
	}
	return rel, true
}

func (c *DefaultChecker) packageURL(version string) string {
	return c.registry.RepoURL() + "/releases/download/" + version + "/" + c.identity.PackageFile
}

func (c *DefaultChecker) outcome(o Outcome, kv ...any) {
	c.logger.DebugW("update check finished", append([]any{"outcome", string(o)}, kv...)...)
}
