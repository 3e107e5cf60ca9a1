package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/smartsubstation/fieldsync/internal/gateway"
	"github.com/smartsubstation/fieldsync/internal/store"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	gw, err := gateway.New(gateway.Config{
		BaseURL: srv.URL,
		Session: gateway.NewMemorySession("tok-1"),
		Queue:   st,
		Online:  func() bool { return true },
	})
	if err != nil {
		t.Fatalf("gateway.New() failed: %v", err)
	}
	return NewClient(gw)
}

// TestMyTasks tests list decoding through the envelope
func TestMyTasks(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tasks/my" {
			t.Errorf("path = %q, want /tasks/my", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"code":200,"data":[{"taskId":"t-1","title":"Inspect bay 3"}]}`))
	}))

	tasks, err := client.MyTasks(context.Background(), nil)
	if err != nil {
		t.Fatalf("MyTasks() failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].TaskID != "t-1" {
		t.Errorf("tasks = %+v, want one task t-1", tasks)
	}
}

// TestDeviceByQRCode tests that the QR code is path-escaped
func TestDeviceByQRCode(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/devices/qr/QR 001" {
			t.Errorf("path = %q, want decoded QR segment", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"code":200,"data":{"deviceId":"d-1","qrCode":"QR 001"}}`))
	}))

	device, err := client.DeviceByQRCode(context.Background(), "QR 001")
	if err != nil {
		t.Fatalf("DeviceByQRCode() failed: %v", err)
	}
	if device.DeviceID != "d-1" {
		t.Errorf("DeviceID = %q, want d-1", device.DeviceID)
	}
}

// TestRefresher_PartialFailure tests that one failing entity type doesn't
// stop the rest of the refresh
func TestRefresher_PartialFailure(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer st.Close()
	if err := st.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tasks/my":
			w.WriteHeader(http.StatusInternalServerError)
		case "/devices":
			_, _ = w.Write([]byte(`{"code":200,"data":[{"deviceId":"d-1","qrCode":"QR-001"}]}`))
		default:
			_, _ = w.Write([]byte(`{"code":200,"data":[]}`))
		}
	}))
	defer srv.Close()

	gw, err := gateway.New(gateway.Config{
		BaseURL: srv.URL,
		Session: gateway.NewMemorySession("tok-1"),
		Queue:   st,
		Online:  func() bool { return true },
	})
	if err != nil {
		t.Fatalf("gateway.New() failed: %v", err)
	}

	refresher := NewRefresher(NewClient(gw), st, nil)

	err = refresher.RefreshAll(context.Background())
	if err == nil {
		t.Fatal("RefreshAll() succeeded despite failing tasks endpoint")
	}

	// devices still made it into the cache
	device, err := st.GetDeviceByQRCode(context.Background(), "QR-001")
	if err != nil {
		t.Fatalf("GetDeviceByQRCode() failed: %v", err)
	}
	if device.DeviceID != "d-1" {
		t.Errorf("DeviceID = %q, want d-1", device.DeviceID)
	}
}
