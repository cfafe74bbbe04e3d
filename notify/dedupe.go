package notify

import (
	"context"

	"github.com/vascofialho-nl/releasecheck/models"
)

var _ Notifier = (*Deduplicator)(nil)

// NotifiedStore records the last version announced per plugin.
type NotifiedStore interface {
	LastNotified(ctx context.Context, pluginID string) (string, error)
	SetLastNotified(ctx context.Context, pluginID, version string) error
}

// Deduplicator forwards an update only the first time its version is seen.
type Deduplicator struct {
	next  Notifier
	store NotifiedStore
}

func NewDeduplicator(next Notifier, st NotifiedStore) *Deduplicator {
	return &Deduplicator{next: next, store: st}
}

func (d *Deduplicator) Notify(ctx context.Context, desc models.UpdateDescriptor) error {
	last, err := d.store.LastNotified(ctx, desc.Plugin)
	if err != nil {
		return err
	}
	if last == desc.NewVersion {
		return nil
	}
	if err := d.next.Notify(ctx, desc); err != nil {
		return err
	}
	return d.store.SetLastNotified(ctx, desc.Plugin, desc.NewVersion)
}
