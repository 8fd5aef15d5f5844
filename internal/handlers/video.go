package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/AnshRaj112/rehab-backend/internal/middleware"
	"github.com/AnshRaj112/rehab-backend/internal/services"
	"github.com/AnshRaj112/rehab-backend/pkg/clientip"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// VideoServer locates the video of an exercise.
type VideoServer interface {
	Open(exerciseID uuid.UUID) (http.File, error)
}

// FileVideoServer reads <Dir>/<exercise id>.mp4.
type FileVideoServer struct {
	Dir string
}

func (s FileVideoServer) Open(exerciseID uuid.UUID) (http.File, error) {
	return os.Open(filepath.Join(s.Dir, exerciseID.String()+".mp4"))
}

// VideoHandler issues and redeems video access tokens.
type VideoHandler struct {
	svc    *services.AuthService
	videos VideoServer
	ip     clientip.Resolver
}

// NewVideoHandler creates the handler.
func NewVideoHandler(svc *services.AuthService, videos VideoServer, ip clientip.Resolver) *VideoHandler {
	return &VideoHandler{svc: svc, videos: videos, ip: ip}
}

// VideoTokenResponse is returned when a token is issued.
type VideoTokenResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func exerciseParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "exerciseID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Not found")
		return uuid.Nil, false
	}
	return id, true
}

// IssueToken grants a single-use token for the exercise video. Requires a patient session.
func (h *VideoHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	exerciseID, ok := exerciseParam(w, r)
	if !ok {
		return
	}
	token, err := h.svc.IssueVideoAccess(r.Context(), session, exerciseID, middleware.Meta(h.ip, r))
	if err != nil {
		respondServiceError(w, "issue video token", err)
		return
	}
	respondData(w, http.StatusCreated, VideoTokenResponse{
		Token:     token.Value,
		URL:       "/api/exercises/" + exerciseID.String() + "/video?token=" + url.QueryEscape(token.Value),
		ExpiresAt: token.ExpiresAt,
	})
}

// Stream redeems the token and serves the video. The file is opened first so
// a missing video does not burn the token.
func (h *VideoHandler) Stream(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	exerciseID, ok := exerciseParam(w, r)
	if !ok {
		return
	}

	f, err := h.videos.Open(exerciseID)
	if errors.Is(err, fs.ErrNotExist) {
		respondError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		respondServiceError(w, "open video", err)
		return
	}
	defer f.Close()

	if err := h.svc.RedeemVideoAccess(r.Context(), session, r.URL.Query().Get("token"), exerciseID, middleware.Meta(h.ip, r)); err != nil {
		respondServiceError(w, "redeem video token", err)
		return
	}

	info, err := f.Stat()
	if err != nil {
		respondServiceError(w, "stat video", err)
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
