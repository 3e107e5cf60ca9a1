package api

import (
	"context"
	"fmt"
	"log"

	"github.com/smartsubstation/fieldsync/internal/store"
)

// Refresher pulls server projections into the local store wholesale so
// field browsing keeps working offline. Each entity type refreshes
// independently; a failure on one does not stop the others.
type Refresher struct {
	client *Client
	store  *store.Store
	logger *log.Logger
}

// NewRefresher creates a Refresher.
func NewRefresher(client *Client, st *store.Store, logger *log.Logger) *Refresher {
	if logger == nil {
		logger = log.Default()
	}
	return &Refresher{client: client, store: st, logger: logger}
}

// RefreshAll pulls every cached entity type. Per-type failures are logged
// and counted; the first error is returned after all types were attempted.
func (r *Refresher) RefreshAll(ctx context.Context) error {
	var firstErr error

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"tasks", r.RefreshTasks},
		{"devices", r.RefreshDevices},
		{"stations", r.RefreshStations},
		{"templates", r.RefreshTemplates},
		{"defects", r.RefreshDefects},
	}

	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			r.logger.Printf("Failed to refresh %s: %v", step.name, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to refresh %s: %w", step.name, err)
			}
		}
	}

	return firstErr
}

// RefreshTasks pulls the task list into the local cache.
func (r *Refresher) RefreshTasks(ctx context.Context) error {
	tasks, err := r.client.MyTasks(ctx, nil)
	if err != nil {
		return err
	}
	if err := r.store.SaveTasks(ctx, tasks); err != nil {
		return err
	}
	r.logger.Printf("Cached %d tasks", len(tasks))
	return nil
}

// RefreshDevices pulls the device list into the local cache.
func (r *Refresher) RefreshDevices(ctx context.Context) error {
	devices, err := r.client.Devices(ctx, "")
	if err != nil {
		return err
	}
	if err := r.store.SaveDevices(ctx, devices); err != nil {
		return err
	}
	r.logger.Printf("Cached %d devices", len(devices))
	return nil
}

// RefreshStations pulls the station list into the local cache.
func (r *Refresher) RefreshStations(ctx context.Context) error {
	stations, err := r.client.Stations(ctx)
	if err != nil {
		return err
	}
	if err := r.store.SaveStations(ctx, stations); err != nil {
		return err
	}
	r.logger.Printf("Cached %d stations", len(stations))
	return nil
}

// RefreshTemplates pulls the template list into the local cache.
func (r *Refresher) RefreshTemplates(ctx context.Context) error {
	templates, err := r.client.Templates(ctx)
	if err != nil {
		return err
	}
	if err := r.store.SaveTemplates(ctx, templates); err != nil {
		return err
	}
	r.logger.Printf("Cached %d templates", len(templates))
	return nil
}

// RefreshDefects pulls the defect list into the local cache.
func (r *Refresher) RefreshDefects(ctx context.Context) error {
	defects, err := r.client.Defects(ctx)
	if err != nil {
		return err
	}
	if err := r.store.SaveDefects(ctx, defects); err != nil {
		return err
	}
	r.logger.Printf("Cached %d defects", len(defects))
	return nil
}
