// Package backend is the REST client of the matrimonial platform.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matheus3301/rishta/internal/metrics"
)

// TokenFunc returns the current bearer token, or "" when logged out.
type TokenFunc func() string

// Config configures a Client.
type Config struct {
	BaseURL           string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client calls the platform REST API. Every request carries the bearer
// token and waits on a shared rate limiter.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenFunc
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a client.
func New(cfg Config, token TokenFunc, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		token:   token,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// call performs a request. route is the path template used as metric label.
func (c *Client) call(ctx context.Context, method, route, path string, body io.Reader, contentType string, out any) error {
	token := c.token()
	if token == "" {
		return ErrNoToken
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RESTRequestDuration.WithLabelValues(method, route, "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("%s %s: %w", method, route, err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.RESTRequestDuration.WithLabelValues(method, route, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		apiErr := parseError(resp.StatusCode, method, path, respBody)
		c.logger.Debug("backend error",
			zap.String("method", method),
			zap.String("route", route),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message))
		return apiErr
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, route, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, route, path string, out any) error {
	return c.call(ctx, http.MethodGet, route, path, nil, "", out)
}

func (c *Client) sendJSON(ctx context.Context, method, route, path string, in, out any) error {
	var body io.Reader
	ct := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
		ct = "application/json"
	}
	return c.call(ctx, method, route, path, body, ct, out)
}

func seg(s string) string { return url.PathEscape(s) }

// Me returns the viewer's own profile.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.getJSON(ctx, "/api/profile/me", "/api/profile/me", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateMe edits the viewer's profile.
func (c *Client) UpdateMe(ctx context.Context, u ProfileUpdate) (*Profile, error) {
	var p Profile
	if err := c.sendJSON(ctx, http.MethodPut, "/api/profile/me", "/api/profile/me", u, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Profile returns another member's profile.
func (c *Client) Profile(ctx context.Context, id string) (*Profile, error) {
	var p Profile
	if err := c.getJSON(ctx, "/api/profiles/{id}", "/api/profiles/"+seg(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Matches tabs.
var MatchTabs = []string{"recommended", "new", "nearby", "mutual"}

// Matches returns one page of a matches tab. Pages start at 1.
func (c *Client) Matches(ctx context.Context, tab string, page, limit int) (*MatchPage, error) {
	if !slices.Contains(MatchTabs, tab) {
		return nil, fmt.Errorf("unknown matches tab %q", tab)
	}
	q := url.Values{"tab": {tab}}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var mp MatchPage
	if err := c.getJSON(ctx, "/api/matches", "/api/matches?"+q.Encode(), &mp); err != nil {
		return nil, err
	}
	return &mp, nil
}

// Request boxes.
var RequestBoxes = []string{"received", "sent", "accepted", "rejected", "deleted"}

// Requests lists the connection requests in a box.
func (c *Client) Requests(ctx context.Context, box string) ([]Request, error) {
	if !slices.Contains(RequestBoxes, box) {
		return nil, fmt.Errorf("unknown requests box %q", box)
	}
	var out struct {
		Requests []Request `json:"requests"`
	}
	if err := c.getJSON(ctx, "/api/requests", "/api/requests?box="+url.QueryEscape(box), &out); err != nil {
		return nil, err
	}
	return out.Requests, nil
}

// SendRequest sends a connection request to a member.
func (c *Client) SendRequest(ctx context.Context, to string) (*Request, error) {
	var r Request
	if err := c.sendJSON(ctx, http.MethodPost, "/api/requests", "/api/requests", map[string]string{"to": to}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Request actions.
var RequestActions = []string{"accept", "reject", "restore"}

// ActOnRequest accepts, rejects or restores a request.
func (c *Client) ActOnRequest(ctx context.Context, id, action string) (*Request, error) {
	if !slices.Contains(RequestActions, action) {
		return nil, fmt.Errorf("unknown request action %q", action)
	}
	var r Request
	route := "/api/requests/{id}/" + action
	if err := c.sendJSON(ctx, http.MethodPost, route, "/api/requests/"+seg(id)+"/"+action, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteRequest deletes a request; it moves to the deleted box.
func (c *Client) DeleteRequest(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodDelete, "/api/requests/{id}", "/api/requests/"+seg(id), nil, nil)
}

func (c *Client) toggle(ctx context.Context, base, userID string, undo bool) error {
	method := http.MethodPost
	if undo {
		method = http.MethodDelete
	}
	return c.sendJSON(ctx, method, base+"/{userId}", base+"/"+seg(userID), nil, nil)
}

// Like likes a member, or removes the like when undo is set.
func (c *Client) Like(ctx context.Context, userID string, undo bool) error {
	return c.toggle(ctx, "/api/likes", userID, undo)
}

// Shortlist adds a member to the shortlist, or removes them when undo is set.
func (c *Client) Shortlist(ctx context.Context, userID string, undo bool) error {
	return c.toggle(ctx, "/api/shortlist", userID, undo)
}

// Block blocks a member, or unblocks when undo is set.
func (c *Client) Block(ctx context.Context, userID string, undo bool) error {
	return c.toggle(ctx, "/api/blocks", userID, undo)
}

// Contacts returns the chat contact list.
func (c *Client) Contacts(ctx context.Context) ([]Contact, error) {
	var out struct {
		Contacts []Contact `json:"contacts"`
	}
	if err := c.getJSON(ctx, "/api/chat/contacts", "/api/chat/contacts", &out); err != nil {
		return nil, err
	}
	return out.Contacts, nil
}

// History returns the messages exchanged with peer, oldest first.
func (c *Client) History(ctx context.Context, peer string) ([]Message, error) {
	var out struct {
		Messages []Message `json:"messages"`
	}
	if err := c.getJSON(ctx, "/api/chat/messages/{peerId}", "/api/chat/messages/"+seg(peer), &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// File is an attachment to upload.
type File struct {
	Name   string
	MIME   string
	Reader io.Reader
}

// Outgoing is a message to send.
type Outgoing struct {
	To       string
	Text     string
	ClientID string
	ReplyTo  string
	Files    []File
}

// Send posts a message with its attachments as one multipart request.
func (c *Client) Send(ctx context.Context, m Outgoing) (*Message, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{{"to", m.To}, {"text", m.Text}, {"clientId", m.ClientID}}
	if m.ReplyTo != "" {
		fields = append(fields, [2]string{"replyTo", m.ReplyTo})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	for _, f := range m.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", multipart.FileContentDisposition("files", f.Name))
		ct := f.MIME
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, fmt.Errorf("attach %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var out MessageEnvelope
	if err := c.call(ctx, http.MethodPost, "/api/chat/messages", "/api/chat/messages", &buf, w.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	if out.Message.ID == "" {
		return nil, fmt.Errorf("send: response carries no message id")
	}
	return &out.Message, nil
}

// DeleteMessage deletes one message on the server.
func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodDelete, "/api/chat/messages/{id}", "/api/chat/messages/"+seg(id), nil, nil)
}

// DeleteConversation deletes the whole conversation with peer.
func (c *Client) DeleteConversation(ctx context.Context, peer string) error {
	return c.sendJSON(ctx, http.MethodDelete, "/api/chat/conversations/{peerId}", "/api/chat/conversations/"+seg(peer), nil, nil)
}

// Presence polls the online state of users.
func (c *Client) Presence(ctx context.Context, ids []string) ([]Presence, error) {
	var out struct {
		Presence []Presence `json:"presence"`
	}
	path := "/api/presence?ids=" + url.QueryEscape(strings.Join(ids, ","))
	if err := c.getJSON(ctx, "/api/presence", path, &out); err != nil {
		return nil, err
	}
	return out.Presence, nil
}
