package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/classlens/classlens/internal/config"
	"github.com/classlens/classlens/internal/constants"
	"github.com/classlens/classlens/internal/database"
	"github.com/classlens/classlens/internal/embedding"
	"github.com/classlens/classlens/internal/extractor"
	"github.com/classlens/classlens/internal/recognition"
	"github.com/classlens/classlens/internal/roster"
	"github.com/classlens/classlens/internal/session"
)

// FaceExtractor computes face embeddings for an uploaded image.
type FaceExtractor interface {
	ExtractFaces(ctx context.Context, imageData []byte) (*extractor.Result, error)
}

// AttendanceStore combines submission persistence with read-back of archived
// sessions.
type AttendanceStore interface {
	database.AttendanceWriter
	database.AttendanceReader
}

// SessionsHandler handles the attendance session lifecycle: start, photo
// processing, manual overrides, submit and close.
type SessionsHandler struct {
	config     *config.Config
	sessions   *session.Manager
	roster     *roster.Store
	extractor  FaceExtractor
	attendance AttendanceStore
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(cfg *config.Config, sessions *session.Manager, rosterStore *roster.Store, ext FaceExtractor, attendance AttendanceStore) *SessionsHandler {
	return &SessionsHandler{
		config:     cfg,
		sessions:   sessions,
		roster:     rosterStore,
		extractor:  ext,
		attendance: attendance,
	}
}

// readUploadedPhoto extracts the image bytes from the "photo" multipart field.
func readUploadedPhoto(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		return nil, errors.New("failed to parse multipart form")
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		return nil, errors.New("photo file is required")
	}
	defer file.Close()

	if header.Size > constants.MaxUploadSize {
		return nil, errors.New("photo exceeds maximum upload size")
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.New("failed to read photo")
	}
	return data, nil
}

type startSessionRequest struct {
	Date string `json:"date"`
}

// Start creates a new attendance session for a class. The roster is fixed to
// the students with active enrollments at this moment.
func (h *SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")

	var req startSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeJSONBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
	}
	date := req.Date
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	studentIDs, err := h.roster.StudentIDs(r.Context(), classID)
	if err != nil {
		switch {
		case errors.Is(err, roster.ErrNoEnrolledFaces):
			respondError(w, http.StatusUnprocessableEntity, "class has no enrolled students")
		case errors.Is(err, roster.ErrMixedVersions):
			respondError(w, http.StatusConflict, "class roster mixes embedding versions, re-enroll legacy students first")
		default:
			log.Printf("Failed to load roster for class %s: %v", sanitizeForLog(classID), err)
			respondError(w, http.StatusInternalServerError, "failed to load class roster")
		}
		return
	}

	sess := h.sessions.Start(classID, date, studentIDs)
	respondJSON(w, http.StatusCreated, sess.Snapshot())
}

// photoResponse reports what a single photo contributed to the session.
type photoResponse struct {
	FacesDetected   int                       `json:"faces_detected"`
	FacesRecognized int                       `json:"faces_recognized"`
	FacesDropped    int                       `json:"faces_dropped,omitempty"`
	Outcomes        []recognition.FaceOutcome `json:"outcomes"`
	Stats           session.Stats             `json:"stats"`
}

// ProcessPhoto runs one uploaded photo through extraction and matching and
// merges the result into the session. Extraction and matching happen outside
// the session lock so slow uploads never block reads.
func (h *SessionsHandler) ProcessPhoto(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	imageData, err := readUploadedPhoto(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := h.roster.Load(r.Context(), sess.ClassID)
	if err != nil {
		switch {
		case errors.Is(err, roster.ErrNoEnrolledFaces):
			// Enrollments can be deactivated while a session is open. The
			// photo still counts toward the session, it just recognizes
			// nobody.
			batch = &roster.Batch{}
		case errors.Is(err, roster.ErrMixedVersions):
			respondError(w, http.StatusConflict, "class roster mixes embedding versions")
			return
		default:
			log.Printf("Failed to load roster for session %s: %v", sanitizeForLog(sessionID), err)
			respondError(w, http.StatusInternalServerError, "failed to load class roster")
			return
		}
	}

	extracted, err := h.extractor.ExtractFaces(r.Context(), imageData)
	if err != nil {
		if errors.Is(err, extractor.ErrExtractionFailed) {
			respondError(w, http.StatusBadGateway, "embedding extraction failed, retake the photo")
			return
		}
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if len(batch.Enrolled) > 0 && extracted.Version != batch.Version {
		respondError(w, http.StatusConflict,
			fmt.Sprintf("extractor produced %s embeddings but the class is enrolled with %s", extracted.Version, batch.Version))
		return
	}

	queryFaces := make([]recognition.QueryFace, 0, len(extracted.Faces))
	for i, f := range extracted.Faces {
		queryFaces = append(queryFaces, recognition.QueryFace{
			Vector:    f.Vector,
			FaceIndex: i,
			BBox:      f.BBox,
		})
	}
	queryFaces = recognition.DedupOverlapping(queryFaces, recognition.DefaultOverlapIoU)

	result, err := recognition.MatchPhoto(queryFaces, batch.Enrolled, 0, recognition.Options{
		Threshold: h.config.ThresholdFor(string(batch.Version)),
		MaxFaces:  h.config.Recognition.MaxFaces,
	})
	if err != nil {
		if errors.Is(err, embedding.ErrDimensionMismatch) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		log.Printf("Matching failed for session %s: %v", sanitizeForLog(sessionID), err)
		respondError(w, http.StatusInternalServerError, "matching failed")
		return
	}

	stats, err := sess.Merge(result)
	if err != nil {
		respondError(w, http.StatusConflict, "session no longer accepts photos")
		return
	}

	respondJSON(w, http.StatusOK, photoResponse{
		FacesDetected:   result.FacesDetected,
		FacesRecognized: result.FacesRecognized,
		FacesDropped:    result.FacesDropped,
		Outcomes:        result.Outcomes,
		Stats:           stats,
	})
}

type setMarkRequest struct {
	Status session.MarkStatus `json:"status"`
}

// SetMark applies a manual present/absent override for one student.
func (h *SessionsHandler) SetMark(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	studentID := chi.URLParam(r, "studentID")

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	var req setMarkRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Status != session.Present && req.Status != session.Absent {
		respondError(w, http.StatusBadRequest, "status must be present or absent")
		return
	}

	mark, err := sess.SetMark(studentID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrStudentNotEnrolled):
			respondError(w, http.StatusNotFound, "student is not on the session roster")
		case errors.Is(err, session.ErrAlreadySubmitted), errors.Is(err, session.ErrInvalidStateTransition):
			respondError(w, http.StatusConflict, "session no longer accepts mark changes")
		default:
			respondError(w, http.StatusInternalServerError, "failed to set mark")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"student_id": studentID,
		"mark":       mark,
	})
}

// Get returns the current session view. Sessions that have already been
// submitted and evicted from memory are read back from storage.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.sessions.Get(sessionID)
	if err == nil {
		respondJSON(w, http.StatusOK, sess.Snapshot())
		return
	}

	summary, err := h.attendance.GetSessionSummary(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Printf("Failed to load session %s: %v", sanitizeForLog(sessionID), err)
		respondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	records, err := h.attendance.GetRecordsBySession(r.Context(), sessionID)
	if err != nil {
		log.Printf("Failed to load records for session %s: %v", sanitizeForLog(sessionID), err)
		respondError(w, http.StatusInternalServerError, "failed to load session records")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"summary": summary,
		"records": records,
	})
}

type submitResponse struct {
	SessionID        string           `json:"session_id"`
	Records          []session.Record `json:"records"`
	Stats            session.Stats    `json:"stats"`
	AlreadySubmitted bool             `json:"already_submitted"`
}

// Submit finalizes the session: unmarked roster students become implicit
// absentees, the record set is frozen and persisted. Submitting again returns
// the same records without writing anything.
func (h *SessionsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	records, stats, err := sess.Submit(uuid.NewString, time.Now().UTC())
	alreadySubmitted := errors.Is(err, session.ErrAlreadySubmitted)
	if err != nil && !alreadySubmitted {
		respondError(w, http.StatusConflict, "session cannot be submitted from its current state")
		return
	}

	needsPersist := !alreadySubmitted
	if alreadySubmitted {
		// An earlier submit may have frozen the records in memory and then
		// failed to persist them. Re-save from the cached records so the
		// retry leaves the session durable instead of orphaned.
		if _, err := h.attendance.GetSessionSummary(r.Context(), sess.ID); errors.Is(err, database.ErrNotFound) {
			needsPersist = true
		}
	}

	if needsPersist {
		summary := database.StoredSessionSummary{
			SessionID:          sess.ID,
			ClassID:            sess.ClassID,
			Date:               sess.Date,
			PhotosProcessed:    stats.PhotosProcessed,
			FacesDetectedTotal: stats.FacesDetectedTotal,
			StudentsRecognized: stats.StudentsRecognized,
			EnrolledCount:      stats.EnrolledCount,
			SubmittedAt:        time.Now().UTC(),
		}
		if err := h.attendance.SaveSubmission(r.Context(), summary, records); err != nil {
			log.Printf("Failed to persist submission for session %s: %v", sanitizeForLog(sessionID), err)
			respondError(w, http.StatusInternalServerError, "failed to persist submission")
			return
		}
	}

	respondJSON(w, http.StatusOK, submitResponse{
		SessionID:        sess.ID,
		Records:          records,
		Stats:            stats,
		AlreadySubmitted: alreadySubmitted,
	})
}

// Close archives a submitted session and evicts it from memory.
func (h *SessionsHandler) Close(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	if err := sess.Close(); err != nil {
		respondError(w, http.StatusConflict, "only submitted sessions can be closed")
		return
	}

	if err := h.attendance.ArchiveSession(r.Context(), sessionID); err != nil && !errors.Is(err, database.ErrNotFound) {
		log.Printf("Failed to archive session %s: %v", sanitizeForLog(sessionID), err)
		respondError(w, http.StatusInternalServerError, "failed to archive session")
		return
	}

	h.sessions.Remove(sessionID)
	respondJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"status":     string(session.StatusClosed),
	})
}
