// Package gateway wraps outbound API calls with the three concerns every
// call shares: bearer-token injection, response envelope unwrapping, and
// offline fallback.
//
// Server responses use the envelope {code, data, message}; code 200 unwraps
// to data. A transport failure while the network monitor reports offline is
// not surfaced as a raw error: the call is durably queued in the store and
// the caller receives ErrOfflineQueued. Transport failures while online map
// HTTP status codes to user-facing messages; a 401 additionally forces the
// session to clear, exactly once per token.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/smartsubstation/fieldsync/internal/store"
)

// Queue is the durable destination for offline-captured calls.
type Queue interface {
	AddPendingRequest(ctx context.Context, req *store.PendingRequest) error
}

// Notifier surfaces user-facing failure messages. The UI layer supplies the
// real implementation; the default logs.
type Notifier interface {
	Notify(message string)
}

// LogNotifier is a Notifier writing to a log.Logger.
type LogNotifier struct {
	Logger *log.Logger
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(message string) {
	n.Logger.Printf("notice: %s", message)
}

// Request describes one outbound API call.
type Request struct {
	// Method is the HTTP method; it is uppercased before use.
	Method string
	// Path is the endpoint path, joined to the gateway's base URL.
	Path string
	// Body is JSON-encoded as the request body when non-nil.
	Body any
	// Params are query parameters appended to the URL.
	Params url.Values
}

// Envelope is the wire wrapper all server responses use.
type Envelope struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
}

// Config configures a Gateway.
type Config struct {
	// BaseURL is the server API root, e.g. "https://host/api".
	BaseURL string

	// HTTPClient performs the calls. Defaults to NewHTTPClient().
	HTTPClient *http.Client

	// Session supplies the bearer token and absorbs forced logouts.
	Session Session

	// Queue receives offline-captured calls.
	Queue Queue

	// Online reports the network monitor's current derived state.
	Online func() bool

	// Notifier surfaces user-facing messages. Defaults to a log notifier.
	Notifier Notifier

	// Logger for gateway activity. Defaults to stderr.
	Logger *log.Logger
}

// Gateway wraps outbound API calls. Safe for concurrent use.
type Gateway struct {
	baseURL string
	client  *http.Client
	session Session
	queue   Queue
	online  func() bool
	notify  Notifier
	logger  *log.Logger

	// 401 logout latch: remembers the token already cleared so a burst of
	// concurrent 401s forces exactly one logout.
	logoutMu     sync.Mutex
	clearedToken string
}

// New creates a Gateway. Session, Queue, and Online must be provided.
func New(config Config) (*Gateway, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if config.Session == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	if config.Queue == nil {
		return nil, fmt.Errorf("queue cannot be nil")
	}
	if config.Online == nil {
		return nil, fmt.Errorf("online check cannot be nil")
	}
	if config.HTTPClient == nil {
		config.HTTPClient = NewHTTPClient()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[gateway] ", log.LstdFlags)
	}
	if config.Notifier == nil {
		config.Notifier = &LogNotifier{Logger: config.Logger}
	}

	return &Gateway{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		client:  config.HTTPClient,
		session: config.Session,
		queue:   config.Queue,
		online:  config.Online,
		notify:  config.Notifier,
		logger:  config.Logger,
	}, nil
}

// Do executes one API call and returns the unwrapped envelope data.
//
// Failure modes:
//   - transport failure while offline: the call is queued and
//     ErrOfflineQueued is returned
//   - transport failure while online: the raw error is returned wrapped
//   - non-2xx status or envelope code != 200: *APIError with the
//     user-facing message
func (g *Gateway) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	method := strings.ToUpper(req.Method)
	baseURL := g.baseURL + req.Path
	fullURL := baseURL
	if len(req.Params) > 0 {
		fullURL += "?" + req.Params.Encode()
	}

	var bodyJSON []byte
	if req.Body != nil {
		var err error
		bodyJSON, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if bodyJSON != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	g.authorize(httpReq)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		if !g.online() {
			return nil, g.captureOffline(ctx, method, baseURL, bodyJSON, req.Params)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return g.handleResponse(resp)
}

// DoInto executes the call and decodes the envelope data into out.
func (g *Gateway) DoInto(ctx context.Context, req Request, out any) error {
	data, err := g.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// Upload posts a multipart file to path with optional extra form fields and
// an optional progress callback receiving percentages 0-100.
//
// Uploads are not offline-captured here: file evidence rides the
// pending_files queue, which references the file on disk instead of
// buffering multipart bodies in the request queue.
func (g *Gateway) Upload(ctx context.Context, path, field, filename string, r io.Reader, fields map[string]string, progress func(percent int)) (json.RawMessage, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to buffer upload: %w", err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	var body io.Reader = &buf
	if progress != nil {
		body = &progressReader{r: &buf, total: int64(buf.Len()), report: progress}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	g.authorize(httpReq)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	return g.handleResponse(resp)
}

// authorize attaches the bearer token, re-read from the session per call.
func (g *Gateway) authorize(req *http.Request) {
	if token := g.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// handleResponse maps the HTTP status and envelope to the call result.
func (g *Gateway) handleResponse(resp *http.Response) (json.RawMessage, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var env Envelope
	envOK := json.Unmarshal(raw, &env) == nil

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := statusMessage(resp.StatusCode)
		if envOK && env.Message != "" {
			// server-provided message wins for 500 and the generic case
			if resp.StatusCode == 500 || statusMessage(resp.StatusCode) == msgRequestFailed {
				message = env.Message
			}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			g.forceLogout()
		}

		g.notify.Notify(message)
		return nil, &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: message}
	}

	if !envOK {
		return nil, fmt.Errorf("malformed response envelope")
	}

	if env.Code != 200 {
		message := env.Message
		if message == "" {
			message = msgRequestFailed
		}
		g.notify.Notify(message)
		return nil, &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: message}
	}

	return env.Data, nil
}

// forceLogout clears the session at most once per token, so concurrent 401
// responses don't trigger a logout storm.
func (g *Gateway) forceLogout() {
	token := g.session.Token()
	if token == "" {
		// already logged out
		return
	}

	g.logoutMu.Lock()
	defer g.logoutMu.Unlock()

	if token == g.clearedToken {
		return
	}
	g.clearedToken = token

	if err := g.session.Clear(); err != nil {
		g.logger.Printf("Failed to clear session: %v", err)
	}
}

// captureOffline converts a failed call into a durable queue entry. The
// queue attempt is made, succeed or fail, and ErrOfflineQueued is returned
// either way so the caller does not hang on the raw network error.
func (g *Gateway) captureOffline(ctx context.Context, method, reqURL string, bodyJSON []byte, params url.Values) error {
	g.notify.Notify(msgOfflineQueued)

	entry := &store.PendingRequest{
		// method_url tuple kept for debuggability; uuid suffix instead of a
		// raw millisecond timestamp so rapid identical captures don't collide
		RequestID: fmt.Sprintf("%s_%s_%s", strings.ToLower(method), reqURL, uuid.NewString()),
		URL:       reqURL,
		Method:    method,
		Data:      string(bodyJSON),
		Params:    params.Encode(),
		Status:    store.StatusPending,
	}

	if err := g.queue.AddPendingRequest(ctx, entry); err != nil {
		g.logger.Printf("Failed to queue offline request: %v", err)
		g.notify.Notify(msgStorageFailed)
	}

	return ErrOfflineQueued
}

// progressReader reports read progress as a percentage of total.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report func(percent int)
	last   int
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)

	if p.total > 0 {
		percent := int(p.read * 100 / p.total)
		if percent > 100 {
			percent = 100
		}
		if percent != p.last {
			p.last = percent
			p.report(percent)
		}
	}

	return n, err
}
