package notify

import (
	"context"

	"github.com/vascofialho-nl/releasecheck/logger"
	"github.com/vascofialho-nl/releasecheck/models"
)

var _ Notifier = (*LogNotifier)(nil)

// LogNotifier writes updates to the application log.
type LogNotifier struct {
	logger logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.NewNop()
	}
	return &LogNotifier{logger: log}
}

func (n *LogNotifier) Notify(_ context.Context, d models.UpdateDescriptor) error {
	n.logger.InfoW("update available",
		"plugin", d.Plugin,
		"new_version", d.NewVersion,
		"package", d.Package,
	)
	return nil
}
