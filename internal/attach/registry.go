// Package attach stages local files for outgoing messages and manages the
// preview handles the UI renders them through.
package attach

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/rishta/internal/metrics"
)

// HandlePrefix marks local preview handles.
const HandlePrefix = "preview://"

var (
	ErrRevoked  = errors.New("preview handle revoked")
	ErrTooLarge = errors.New("attachment too large")
	ErrNotFile  = errors.New("not a regular file")
)

// Staged is a local file attached to a draft.
type Staged struct {
	Handle string
	Peer   string
	Path   string
	Name   string
	MIME   string
	Size   int64
}

// Registry tracks staged files per peer draft and the set of live preview
// handles. A handle stays live from Stage until it is revoked: on removal
// from the draft, after the carrying message is confirmed, on conversation
// switch, or at shutdown.
type Registry struct {
	maxBytes int64
	logger   *zap.Logger

	mu     sync.Mutex
	live   map[string]Staged
	drafts map[string][]string
}

// NewRegistry creates a registry that refuses files above maxBytes
// (no limit when maxBytes <= 0).
func NewRegistry(maxBytes int64, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		maxBytes: maxBytes,
		logger:   logger,
		live:     make(map[string]Staged),
		drafts:   make(map[string][]string),
	}
}

// Stage adds the file at path to peer's draft and returns it with a fresh
// preview handle.
func (r *Registry) Stage(peer, path string) (Staged, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Staged{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Staged{}, fmt.Errorf("stat attachment: %w", err)
	}
	if !info.Mode().IsRegular() {
		return Staged{}, fmt.Errorf("%s: %w", path, ErrNotFile)
	}
	if err := r.checkSize(info.Size()); err != nil {
		return Staged{}, fmt.Errorf("%s: %w", path, err)
	}
	mt, err := sniff(abs)
	if err != nil {
		return Staged{}, err
	}

	s := Staged{
		Handle: HandlePrefix + uuid.NewString(),
		Peer:   peer,
		Path:   abs,
		Name:   filepath.Base(abs),
		MIME:   mt,
		Size:   info.Size(),
	}
	r.mu.Lock()
	r.live[s.Handle] = s
	r.drafts[peer] = append(r.drafts[peer], s.Handle)
	r.gaugeLocked()
	r.mu.Unlock()

	r.logger.Debug("attachment staged",
		zap.String("handle", s.Handle),
		zap.String("peer", peer),
		zap.String("mime", s.MIME),
		zap.Int64("size", s.Size))
	return s, nil
}

func (r *Registry) checkSize(n int64) error {
	if r.maxBytes > 0 && n > r.maxBytes {
		return fmt.Errorf("%w: %s exceeds %s", ErrTooLarge,
			humanize.IBytes(uint64(n)), humanize.IBytes(uint64(r.maxBytes)))
	}
	return nil
}

// sniff detects the MIME type from the first 512 bytes, falling back to
// the extension when content sniffing only finds a generic type.
func sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open attachment: %w", err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read attachment: %w", err)
	}
	mt := http.DetectContentType(buf[:n])
	if mt == "application/octet-stream" || strings.HasPrefix(mt, "text/plain") {
		if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
			return byExt, nil
		}
	}
	return mt, nil
}

// Get returns the staged file behind a live handle.
func (r *Registry) Get(handle string) (Staged, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.live[handle]
	if !ok {
		return Staged{}, ErrRevoked
	}
	return s, nil
}

// Draft returns the staged files of peer's draft in staging order.
func (r *Registry) Draft(peer string) []Staged {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Staged
	for _, h := range r.drafts[peer] {
		if s, ok := r.live[h]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Take empties peer's draft and returns its files. Their handles stay live
// because the pending message now references them.
func (r *Registry) Take(peer string) []Staged {
	out := r.Draft(peer)
	r.mu.Lock()
	delete(r.drafts, peer)
	r.mu.Unlock()
	return out
}

// Live reports whether handle may still be rendered.
func (r *Registry) Live(handle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.live[handle]
	return ok
}

// Revoke releases one handle. Revoking an unknown or already revoked
// handle is a no-op that reports false.
func (r *Registry) Revoke(handle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.live[handle]
	if !ok {
		return false
	}
	delete(r.live, handle)
	r.gaugeLocked()
	if d := r.drafts[s.Peer]; len(d) > 0 {
		r.drafts[s.Peer] = slices.DeleteFunc(d, func(h string) bool { return h == handle })
		if len(r.drafts[s.Peer]) == 0 {
			delete(r.drafts, s.Peer)
		}
	}
	return true
}

// RevokeMany releases several handles and returns how many were live.
func (r *Registry) RevokeMany(handles []string) int {
	n := 0
	for _, h := range handles {
		if r.Revoke(h) {
			n++
		}
	}
	return n
}

// RevokeDraft discards peer's draft and releases its handles.
func (r *Registry) RevokeDraft(peer string) []string {
	r.mu.Lock()
	handles := r.drafts[peer]
	delete(r.drafts, peer)
	for _, h := range handles {
		delete(r.live, h)
	}
	r.gaugeLocked()
	r.mu.Unlock()
	return handles
}

// RevokeAll releases every handle. Called at shutdown.
func (r *Registry) RevokeAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.live)
	clear(r.live)
	clear(r.drafts)
	r.gaugeLocked()
	return n
}

func (r *Registry) gaugeLocked() {
	metrics.PreviewsLive.Set(float64(len(r.live)))
}

// Count returns the number of live handles.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Open opens a staged file for upload. It does not need a live handle: a
// message keeps its files after its previews are released, the way an
// upload outlives the preview it was picked from. The size limit is
// checked again since the file may have grown.
func (r *Registry) Open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open attachment: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := r.checkSize(info.Size()); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return f, nil
}
