package app

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Prune deletes run history older than the given age.
func (a *App) Prune(ctx context.Context, opts PruneOptions) error {
	if opts.OlderThan <= 0 {
		return errors.New("prune age must be positive")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; nothing to prune")
	}
	if closeStore != nil {
		defer closeStore()
	}

	cutoff := time.Now().UTC().Add(-opts.OlderThan)
	if opts.DryRun {
		pending, err := store.CountRunsBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		a.log.Warn().Time("cutoff", cutoff).Int64("would_delete", pending).Msg("prune dry-run: nothing deleted")
		fmt.Fprintf(a.Out, "would delete %d runs older than %s\n", pending, cutoff.Format(time.RFC3339))
		return nil
	}

	deleted, err := store.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	a.log.Info().Time("cutoff", cutoff).Int64("deleted", deleted).Msg("prune complete")
	fmt.Fprintf(a.Out, "deleted %d runs older than %s\n", deleted, cutoff.Format(time.RFC3339))
	return nil
}
