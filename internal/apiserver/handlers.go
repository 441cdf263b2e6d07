package apiserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/klubi/inkwell/internal/queue"
	"github.com/klubi/inkwell/internal/storage"
	"github.com/klubi/inkwell/internal/store"
	v1 "github.com/klubi/inkwell/pkg/apis/v1"
)

// maxBodyBytes bounds request bodies. Blobs are the largest payload.
const maxBodyBytes = 32 << 20

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// writeJSON serialises data as JSON and writes it to the response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// writeError writes a JSON error envelope to the response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, v1.ErrorResponse{Error: msg})
}

// writeStorageError maps a storage error to its HTTP status.
func (s *Server) writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case store.IsQuotaError(err):
		s.writeError(w, http.StatusInsufficientStorage, err.Error())
	case errors.Is(err, queue.ErrClosed), errors.Is(err, storage.ErrServiceClosed):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("storage request failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

// ---------------------------------------------------------------------------
// Health and service
// ---------------------------------------------------------------------------

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !s.storage.IsHydrated() {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "hydrating"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.storage.Status())
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	report, err := s.storage.RunMigrationIfNeeded(r.Context())
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// handleEvents streams service events as server-sent events until the
// client goes away or the service closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	// The stream outlives the server's write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("could not clear write deadline", zap.Error(err))
	}

	events, cancel := s.storage.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				s.logger.Error("failed to encode event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
			flusher.Flush()
		}
	}
}

// ---------------------------------------------------------------------------
// Items
// ---------------------------------------------------------------------------

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	keys, err := s.storage.Keys(r.Context(), prefix)
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v1.KeyList{Prefix: prefix, Keys: keys})
}

func (s *Server) handleClearItems(w http.ResponseWriter, r *http.Request) {
	var err error
	if prefix := r.URL.Query().Get("prefix"); prefix != "" {
		err = s.storage.ClearPrefix(r.Context(), prefix)
	} else {
		err = s.storage.Clear()
	}
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var (
		value string
		ok    bool
	)
	if r.URL.Query().Get("consistent") == "true" {
		var err error
		value, ok, err = s.storage.Get(r.Context(), key)
		if err != nil {
			s.writeStorageError(w, err)
			return
		}
	} else {
		value, ok = s.storage.GetItem(key)
	}

	if !ok {
		s.writeError(w, http.StatusNotFound, "item not found")
		return
	}
	s.writeJSON(w, http.StatusOK, v1.Item{Key: key, Value: value})
}

func (s *Server) handleSetItem(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	body, err := readBody(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		err = s.storage.Set(r.Context(), key, string(body))
	} else {
		err = s.storage.SetItem(key, string(body))
	}
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v1.Item{Key: key, Value: string(body)})
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.RemoveItem(mux.Vars(r)["key"]); err != nil {
		s.writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

func toProject(e store.ProjectEntry) v1.Project {
	return v1.Project{ID: e.ID, Data: e.Data, UpdatedAt: e.UpdatedAt}
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	ids, err := s.storage.ListProjectIDs(r.Context())
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v1.ProjectList{IDs: ids})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var p v1.Project
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p.ID = uuid.New().String()

	if err := s.storage.SaveProject(r.Context(), p.ID, p.Data); err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, &p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	e, err := s.storage.LoadProject(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toProject(e))
}

func (s *Server) handleSaveProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var p v1.Project
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// The path wins over any id in the body.
	p.ID = id

	if err := s.storage.SaveProject(r.Context(), id, p.Data); err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.DeleteProject(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Blobs
// ---------------------------------------------------------------------------

func (s *Server) handleListBlobs(w http.ResponseWriter, r *http.Request) {
	keys, err := s.storage.ListBlobKeys(r.Context())
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v1.BlobList{Keys: keys})
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	b, err := s.storage.LoadBlob(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	mimeType := b.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(b.Blob); err != nil {
		s.logger.Debug("failed to write blob", zap.Error(err))
	}
}

func (s *Server) handleSaveBlob(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	body, err := readBody(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mimeType := r.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(body)
	}

	if err := s.storage.SaveBlob(r.Context(), key, body, mimeType); err != nil {
		s.writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.DeleteBlob(r.Context(), mux.Vars(r)["key"]); err != nil {
		s.writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
