package updater

import (
	"context"

	"github.com/vascofialho-nl/releasecheck/models"
)

// Checker decides whether a newer release than the installed one exists.
type Checker interface {
	// CheckRepositoryAvailability reports whether the registry answers with 200.
	CheckRepositoryAvailability(ctx context.Context) bool
	// GetLocalVersion reads the installed version from the host manifest.
	GetLocalVersion(ctx context.Context) (string, error)
	// GetLatestRemoteRelease returns the latest release version with one leading "v" stripped.
	GetLatestRemoteRelease(ctx context.Context) (string, bool)
	// CheckForUpdate returns a descriptor only when the remote release is strictly newer.
	CheckForUpdate(ctx context.Context, t *models.UpdateTransient) (*models.UpdateDescriptor, error)
	// DescribeRelease returns release metadata when slug names this repository.
	DescribeRelease(ctx context.Context, slug string) (*models.ReleaseInfo, bool)
	// ApplyToTransient records the check result in the host's update bookkeeping.
	ApplyToTransient(ctx context.Context, t *models.UpdateTransient) (*models.UpdateTransient, error)
}

// Outcome is the terminal state of a single check, logged under "outcome".
type Outcome string

const (
	OutcomeSkipped         Outcome = "skipped"
	OutcomeUnavailable     Outcome = "unavailable"
	OutcomeConfigError     Outcome = "config_error"
	OutcomeNoRemote        Outcome = "no_remote"
	OutcomeUpToDate        Outcome = "up_to_date"
	OutcomeUpdateAvailable Outcome = "update_available"
	OutcomeInvalidVersion  Outcome = "invalid_version"
)
