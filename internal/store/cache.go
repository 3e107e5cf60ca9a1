package store

import (
	"context"
	"database/sql"
	"fmt"
)

// This file holds the read-mostly cache tables: server projections refreshed
// wholesale on fetch (upsert-by-key). The store owns no foreign keys between
// them; relationships are logical only.

// SaveTasks upserts a batch of task projections.
func (s *Store) SaveTasks(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO tasks (task_id, task_code, title, station_id, assignee_id, status, plan_date, is_offline, version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(task_id) DO UPDATE SET
		task_code = excluded.task_code,
		title = excluded.title,
		station_id = excluded.station_id,
		assignee_id = excluded.assignee_id,
		status = excluded.status,
		plan_date = excluded.plan_date,
		is_offline = excluded.is_offline,
		version = excluded.version
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tasks {
		if _, err := stmt.ExecContext(ctx, t.TaskID, t.TaskCode, t.Title, t.StationID,
			t.AssigneeID, t.Status, nullIfEmpty(t.PlanDate), t.IsOffline, t.Version); err != nil {
			return fmt.Errorf("failed to upsert task %s: %w", t.TaskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tasks: %w", err)
	}

	return nil
}

// GetTasks returns all cached tasks.
func (s *Store) GetTasks(ctx context.Context) ([]Task, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT task_id, task_code, title, station_id, assignee_id, status, plan_date, is_offline, version
		FROM tasks ORDER BY task_code ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		var planDate sql.NullString
		if err := rows.Scan(&t.TaskID, &t.TaskCode, &t.Title, &t.StationID,
			&t.AssigneeID, &t.Status, &planDate, &t.IsOffline, &t.Version); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.PlanDate = planDate.String
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// SaveDevices upserts a batch of device projections.
func (s *Store) SaveDevices(ctx context.Context, devices []Device) error {
	if len(devices) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO devices (device_id, device_code, name, qr_code, station_id, category_id, version)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(device_id) DO UPDATE SET
		device_code = excluded.device_code,
		name = excluded.name,
		qr_code = excluded.qr_code,
		station_id = excluded.station_id,
		category_id = excluded.category_id,
		version = excluded.version
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range devices {
		if _, err := stmt.ExecContext(ctx, d.DeviceID, d.DeviceCode, d.Name,
			d.QRCode, d.StationID, d.CategoryID, d.Version); err != nil {
			return fmt.Errorf("failed to upsert device %s: %w", d.DeviceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit devices: %w", err)
	}

	return nil
}

// GetDeviceByQRCode looks up a cached device by its QR code.
// Returns sql.ErrNoRows if no device matches.
func (s *Store) GetDeviceByQRCode(ctx context.Context, qrCode string) (*Device, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT device_id, device_code, name, qr_code, station_id, category_id, version
		FROM devices WHERE qr_code = ?`, qrCode)

	var d Device
	if err := row.Scan(&d.DeviceID, &d.DeviceCode, &d.Name, &d.QRCode,
		&d.StationID, &d.CategoryID, &d.Version); err != nil {
		return nil, err
	}

	return &d, nil
}

// SaveStations upserts a batch of station projections.
func (s *Store) SaveStations(ctx context.Context, stations []Station) error {
	if len(stations) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO stations (station_id, station_code, name, address, version)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(station_id) DO UPDATE SET
		station_code = excluded.station_code,
		name = excluded.name,
		address = excluded.address,
		version = excluded.version
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, st := range stations {
		if _, err := stmt.ExecContext(ctx, st.StationID, st.StationCode, st.Name,
			nullIfEmpty(st.Address), st.Version); err != nil {
			return fmt.Errorf("failed to upsert station %s: %w", st.StationID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stations: %w", err)
	}

	return nil
}

// SaveTemplates upserts a batch of template projections.
func (s *Store) SaveTemplates(ctx context.Context, templates []Template) error {
	if len(templates) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO templates (template_id, template_code, name, items, version)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(template_id) DO UPDATE SET
		template_code = excluded.template_code,
		name = excluded.name,
		items = excluded.items,
		version = excluded.version
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, tpl := range templates {
		if _, err := stmt.ExecContext(ctx, tpl.TemplateID, tpl.TemplateCode, tpl.Name,
			nullIfEmpty(tpl.Items), tpl.Version); err != nil {
			return fmt.Errorf("failed to upsert template %s: %w", tpl.TemplateID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit templates: %w", err)
	}

	return nil
}

// SaveDefects upserts a batch of defect projections.
func (s *Store) SaveDefects(ctx context.Context, defects []Defect) error {
	if len(defects) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO defects (defect_id, defect_code, device_id, status, level, description, version)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(defect_id) DO UPDATE SET
		defect_code = excluded.defect_code,
		device_id = excluded.device_id,
		status = excluded.status,
		level = excluded.level,
		description = excluded.description,
		version = excluded.version
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range defects {
		if _, err := stmt.ExecContext(ctx, d.DefectID, d.DefectCode, d.DeviceID,
			d.Status, nullIfEmpty(d.Level), nullIfEmpty(d.Description), d.Version); err != nil {
			return fmt.Errorf("failed to upsert defect %s: %w", d.DefectID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit defects: %w", err)
	}

	return nil
}

// nullIfEmpty converts an empty string to a SQL NULL.
func nullIfEmpty(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
