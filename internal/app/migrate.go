package app

import (
	"context"
	"errors"
	"fmt"
)

// Migrate applies the embedded run history schema.
func (a *App) Migrate(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; nothing to migrate")
	}
	if closeStore != nil {
		defer closeStore()
	}

	applied, err := store.ApplySchema(ctx)
	if err != nil {
		return err
	}
	for _, name := range applied {
		fmt.Fprintf(a.Out, "applied %s\n", name)
	}
	return nil
}
