package backendtest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/matheus3301/rishta/internal/backend"
)

type ctxKey struct{}

func viewerOf(r *http.Request) string {
	v, _ := r.Context().Value(ctxKey{}).(string)
	return v
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := verify(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
	})
}

func (s *Server) recordMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			s.mu.Lock()
			s.served = append(s.served, r.Method+" "+r.URL.Path)
			s.mu.Unlock()
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// profileForLocked decorates p with the viewer's relationship flags.
func (s *Server) profileForLocked(viewer string, p backend.Profile) backend.Profile {
	key := [2]string{viewer, p.ID}
	p.Liked = s.likes[key]
	p.Shortlisted = s.shortlist[key]
	p.Blocked = s.blocks[key]
	p.RequestStatus = ""
	for _, r := range s.requests {
		if (r.From.ID == viewer && r.To.ID == p.ID) || (r.To.ID == viewer && r.From.ID == p.ID) {
			p.RequestStatus = r.Status
		}
	}
	return p
}

func (s *Server) getMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	p, ok := s.profiles[viewerOf(r)]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	var u backend.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[viewerOf(r)]
	if !ok {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.About, u.About)
	set(&p.Location, u.Location)
	set(&p.Profession, u.Profession)
	set(&p.Education, u.Education)
	s.profiles[p.ID] = p
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	viewer := viewerOf(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok || s.blocks[[2]string{id, viewer}] {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, s.profileForLocked(viewer, p))
}

func (s *Server) listMatches(w http.ResponseWriter, r *http.Request) {
	viewer := viewerOf(r)
	tab := r.URL.Query().Get("tab")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	me := s.profiles[viewer]
	var all []backend.Profile
	for id, p := range s.profiles {
		if id == viewer || s.blocks[[2]string{viewer, id}] || s.blocks[[2]string{id, viewer}] {
			continue
		}
		switch tab {
		case "recommended", "new":
		case "nearby":
			if me.Location == "" || p.Location != me.Location {
				continue
			}
		case "mutual":
			if !s.likes[[2]string{viewer, id}] || !s.likes[[2]string{id, viewer}] {
				continue
			}
		default:
			writeError(w, http.StatusBadRequest, "unknown tab "+tab)
			return
		}
		all = append(all, s.profileForLocked(viewer, p))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if tab == "new" {
		sort.SliceStable(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	}

	start := min((page-1)*limit, len(all))
	end := min(start+limit, len(all))
	writeJSON(w, http.StatusOK, backend.MatchPage{
		Profiles: all[start:end],
		Page:     page,
		HasMore:  end < len(all),
	})
}

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	viewer := viewerOf(r)
	box := r.URL.Query().Get("box")
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []backend.Request{}
	for _, req := range s.requests {
		mine := req.From.ID == viewer || req.To.ID == viewer
		if !mine {
			continue
		}
		var keep bool
		switch box {
		case "received":
			keep = req.To.ID == viewer && req.Status == backend.RequestPending
		case "sent":
			keep = req.From.ID == viewer && req.Status == backend.RequestPending
		case "accepted":
			keep = req.Status == backend.RequestAccepted
		case "rejected":
			keep = req.Status == backend.RequestRejected
		case "deleted":
			keep = req.Status == backend.RequestDeleted
		default:
			writeError(w, http.StatusBadRequest, "unknown box "+box)
			return
		}
		if keep {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"requests": out})
}

func (s *Server) createRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		To string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.To == "" {
		writeError(w, http.StatusBadRequest, "recipient required")
		return
	}
	viewer := viewerOf(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	to, ok := s.profiles[body.To]
	if !ok {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	for _, req := range s.requests {
		if req.From.ID == viewer && req.To.ID == body.To && req.Status == backend.RequestPending {
			writeError(w, http.StatusConflict, "request already sent")
			return
		}
	}
	id, at := s.nextLocked("r")
	req := &backend.Request{ID: id, From: s.profiles[viewer], To: to, Status: backend.RequestPending, CreatedAt: at}
	if req.From.ID == "" {
		req.From.ID = viewer
	}
	s.requests[id] = req
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) actOnRequest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	viewer := viewerOf(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[vars["id"]]
	if !ok || (req.From.ID != viewer && req.To.ID != viewer) {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	switch vars["action"] {
	case "accept", "reject":
		if req.To.ID != viewer {
			writeError(w, http.StatusForbidden, "only the recipient can answer a request")
			return
		}
		if req.Status != backend.RequestPending {
			writeError(w, http.StatusConflict, "request is "+req.Status)
			return
		}
		req.Status = backend.RequestAccepted
		if vars["action"] == "reject" {
			req.Status = backend.RequestRejected
		}
	case "restore":
		if req.Status != backend.RequestRejected && req.Status != backend.RequestDeleted {
			writeError(w, http.StatusConflict, "only rejected or deleted requests can be restored")
			return
		}
		req.Status = backend.RequestPending
	}
	_, req.UpdatedAt = s.nextLocked("u")
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) deleteRequest(w http.ResponseWriter, r *http.Request) {
	viewer := viewerOf(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[mux.Vars(r)["id"]]
	if !ok || (req.From.ID != viewer && req.To.ID != viewer) {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	req.Status = backend.RequestDeleted
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) toggle(set map[[2]string]bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := mux.Vars(r)["userId"]
		viewer := viewerOf(r)
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.profiles[target]; !ok {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		if target == viewer {
			writeError(w, http.StatusBadRequest, "cannot target yourself")
			return
		}
		key := [2]string{viewer, target}
		if r.Method == http.MethodDelete {
			delete(set, key)
		} else {
			set[key] = true
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) listContacts(w http.ResponseWriter, r *http.Request) {
	viewer := viewerOf(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	byPeer := map[string]*backend.Contact{}
	contact := func(peer string) *backend.Contact {
		c, ok := byPeer[peer]
		if !ok {
			p := s.profiles[peer]
			c = &backend.Contact{ID: peer, Name: p.Name, Avatar: p.Avatar, Online: len(s.conns[peer]) > 0}
			byPeer[peer] = c
		}
		return c
	}
	for _, req := range s.requests {
		if req.Status != backend.RequestAccepted {
			continue
		}
		switch viewer {
		case req.From.ID:
			contact(req.To.ID)
		case req.To.ID:
			contact(req.From.ID)
		}
	}
	for _, m := range s.messages {
		var peer string
		switch viewer {
		case m.Sender:
			peer = m.Receiver
		case m.Receiver:
			peer = m.Sender
		default:
			continue
		}
		c := contact(peer)
		c.LastMessage = m.Text
		c.LastMessageAt = m.CreatedAt
		if m.Receiver == viewer {
			c.UnreadCount++
		} else {
			c.UnreadCount = 0
		}
	}

	out := make([]backend.Contact, 0, len(byPeer))
	for _, c := range byPeer {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].ID < out[j].ID
	})
	writeJSON(w, http.StatusOK, map[string]any{"contacts": out})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	peer := mux.Vars(r)["peerId"]
	viewer := viewerOf(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []backend.Message{}
	for _, m := range s.messages {
		if (m.Sender == viewer && m.Receiver == peer) || (m.Sender == peer && m.Receiver == viewer) {
			out = append(out, m)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "malformed multipart body")
		return
	}
	viewer := viewerOf(r)
	to := r.FormValue("to")
	text := r.FormValue("text")

	s.mu.Lock()
	if s.sendFail.remaining > 0 {
		s.sendFail.remaining--
		f := s.sendFail
		s.mu.Unlock()
		writeError(w, f.status, f.message)
		return
	}
	s.mu.Unlock()

	if to == "" || (text == "" && (r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0)) {
		writeError(w, http.StatusBadRequest, "recipient and text or files are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocks[[2]string{to, viewer}] || s.blocks[[2]string{viewer, to}] {
		writeError(w, http.StatusForbidden, "you cannot message this member")
		return
	}
	id, at := s.nextLocked("m")
	m := backend.Message{
		ID:        id,
		ClientID:  r.FormValue("clientId"),
		Sender:    viewer,
		Receiver:  to,
		Text:      text,
		ReplyTo:   r.FormValue("replyTo"),
		CreatedAt: at,
	}
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			if err != nil {
				writeError(w, http.StatusBadRequest, "unreadable file")
				return
			}
			n, _ := io.Copy(io.Discard, f)
			_ = f.Close()
			mt := fh.Header.Get("Content-Type")
			m.Attachments = append(m.Attachments, backend.Attachment{
				Name:     fh.Filename,
				URL:      s.URL + "/files/" + id + "/" + fh.Filename,
				MIMEType: mt,
				Size:     n,
			})
			s.uploads = append(s.uploads, Upload{MessageID: id, Name: fh.Filename, MIME: mt, Size: n})
		}
	}
	s.messages = append(s.messages, m)
	writeJSON(w, http.StatusCreated, backend.MessageEnvelope{Message: m})
}

func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	viewer := viewerOf(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.messages {
		if m.ID != id {
			continue
		}
		if m.Sender != viewer {
			writeError(w, http.StatusForbidden, "only the sender can delete a message")
			return
		}
		s.messages = append(s.messages[:i], s.messages[i+1:]...)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeError(w, http.StatusNotFound, "message not found")
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	peer := mux.Vars(r)["peerId"]
	viewer := viewerOf(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.messages[:0]
	for _, m := range s.messages {
		if (m.Sender == viewer && m.Receiver == peer) || (m.Sender == peer && m.Receiver == viewer) {
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getPresence(w http.ResponseWriter, r *http.Request) {
	ids := strings.Split(r.URL.Query().Get("ids"), ",")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []backend.Presence{}
	now := time.Now().UTC()
	for _, id := range ids {
		if id == "" {
			continue
		}
		p := backend.Presence{UserID: id, Online: len(s.conns[id]) > 0, LastSeen: now}
		if o, ok := s.presence[id]; ok {
			p.Online = o.online
			p.LastSeen = o.lastSeen
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"presence": out})
}
