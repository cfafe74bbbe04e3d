package notify

import (
	"context"

	"github.com/vascofialho-nl/releasecheck/models"
)

// Notifier announces an available update.
type Notifier interface {
	Notify(ctx context.Context, d models.UpdateDescriptor) error
}

// Describer supplies release metadata for chat commands.
type Describer interface {
	DescribeRelease(ctx context.Context, slug string) (*models.ReleaseInfo, bool)
}
