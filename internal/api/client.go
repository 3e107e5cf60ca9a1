// Package api provides the typed client for the substation inspection
// server, built on the request gateway. All calls go through the gateway so
// they inherit auth injection, envelope unwrapping, and offline capture.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/smartsubstation/fieldsync/internal/gateway"
	"github.com/smartsubstation/fieldsync/internal/store"
)

// Client is the typed API surface used by the UI layer and the sync
// orchestrator.
type Client struct {
	gw *gateway.Gateway
}

// NewClient creates a Client on top of the given gateway.
func NewClient(gw *gateway.Gateway) *Client {
	return &Client{gw: gw}
}

// MyTasks fetches the caller's task list.
func (c *Client) MyTasks(ctx context.Context, params url.Values) ([]store.Task, error) {
	var tasks []store.Task
	err := c.gw.DoInto(ctx, gateway.Request{
		Method: http.MethodGet,
		Path:   "/tasks/my",
		Params: params,
	}, &tasks)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// TaskDetail fetches a single task.
func (c *Client) TaskDetail(ctx context.Context, taskID string) (*store.Task, error) {
	var task store.Task
	err := c.gw.DoInto(ctx, gateway.Request{
		Method: http.MethodGet,
		Path:   "/tasks/" + taskID,
	}, &task)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// StartTask marks a task as started.
func (c *Client) StartTask(ctx context.Context, taskID string) error {
	return c.gw.DoInto(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/tasks/%s/start", taskID),
	}, nil)
}

// CompleteTask marks a task as completed.
func (c *Client) CompleteTask(ctx context.Context, taskID string, body any) error {
	return c.gw.DoInto(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/tasks/%s/complete", taskID),
		Body:   body,
	}, nil)
}

// SubmitRecord submits one inspection record payload. The payload is sent
// verbatim, which lets the orchestrator replay stored offline records
// without re-encoding.
func (c *Client) SubmitRecord(ctx context.Context, payload json.RawMessage) error {
	return c.gw.DoInto(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "/records/submit",
		Body:   payload,
	}, nil)
}

// BatchSubmitRecords submits multiple inspection records at once.
func (c *Client) BatchSubmitRecords(ctx context.Context, payloads []json.RawMessage) error {
	return c.gw.DoInto(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "/records/batch",
		Body:   payloads,
	}, nil)
}

// DeviceByQRCode resolves a device from a scanned QR code.
func (c *Client) DeviceByQRCode(ctx context.Context, qrCode string) (*store.Device, error) {
	var device store.Device
	err := c.gw.DoInto(ctx, gateway.Request{
		Method: http.MethodGet,
		Path:   "/devices/qr/" + url.PathEscape(qrCode),
	}, &device)
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// UploadFile uploads one evidence file with its business linkage. progress
// may be nil.
func (c *Client) UploadFile(ctx context.Context, filename string, r io.Reader, businessType, businessID string, progress func(percent int)) error {
	fields := map[string]string{
		"businessType": businessType,
		"businessId":   businessID,
	}
	_, err := c.gw.Upload(ctx, "/files/upload", "file", filename, r, fields, progress)
	return err
}

// Devices fetches the device list for a station (all stations when empty).
func (c *Client) Devices(ctx context.Context, stationID string) ([]store.Device, error) {
	params := url.Values{}
	if stationID != "" {
		params.Set("stationId", stationID)
	}

	var devices []store.Device
	err := c.gw.DoInto(ctx, gateway.Request{
		Method: http.MethodGet,
		Path:   "/devices",
		Params: params,
	}, &devices)
	if err != nil {
		return nil, err
	}
	return devices, nil
}

// Stations fetches the station list.
func (c *Client) Stations(ctx context.Context) ([]store.Station, error) {
	var stations []store.Station
	err := c.gw.DoInto(ctx, gateway.Request{
		Method: http.MethodGet,
		Path:   "/stations",
	}, &stations)
	if err != nil {
		return nil, err
	}
	return stations, nil
}

// Templates fetches the inspection template list.
func (c *Client) Templates(ctx context.Context) ([]store.Template, error) {
	var templates []store.Template
	err := c.gw.DoInto(ctx, gateway.Request{
		Method: http.MethodGet,
		Path:   "/templates",
	}, &templates)
	if err != nil {
		return nil, err
	}
	return templates, nil
}

// Defects fetches the defect list.
func (c *Client) Defects(ctx context.Context) ([]store.Defect, error) {
	var defects []store.Defect
	err := c.gw.DoInto(ctx, gateway.Request{
		Method: http.MethodGet,
		Path:   "/defects",
	}, &defects)
	if err != nil {
		return nil, err
	}
	return defects, nil
}
