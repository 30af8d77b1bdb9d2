package app

import (
	"encoding/json"
	"fmt"

	"penwatch/internal/state"
)

// ShowState prints the persisted record. An unreadable file is reported and
// the defaults the next run would use are printed instead.
func (a *App) ShowState() error {
	store := state.NewFile(a.Config.State.Path)
	rec, err := store.Load()
	if err != nil {
		a.log.Warn().Err(err).Str("path", store.Path()).Msg("state unreadable, showing defaults")
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	fmt.Fprintf(a.Out, "%s\n%s\n", store.Path(), data)
	return nil
}
