package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/classlens/classlens/internal/config"
	"github.com/classlens/classlens/internal/constants"
	"github.com/classlens/classlens/internal/database"
	"github.com/classlens/classlens/internal/extractor"
	"github.com/classlens/classlens/internal/sis"
)

// StudentDirectory resolves student identity from the school information
// system. Optional; without it responses carry IDs only.
type StudentDirectory interface {
	ListClassStudents(ctx context.Context, classID string) ([]sis.Student, error)
	GetStudent(ctx context.Context, studentID string) (*sis.Student, error)
}

// EnrollHandler handles reference-face enrollment, class roster queries and
// per-student attendance history.
type EnrollHandler struct {
	config      *config.Config
	enrollments database.EnrollmentWriter
	attendance  database.AttendanceReader
	extractor   FaceExtractor
	indexes     *database.IndexSet
	directory   StudentDirectory
}

// NewEnrollHandler creates a new enrollment handler. directory may be nil.
func NewEnrollHandler(cfg *config.Config, enrollments database.EnrollmentWriter, attendance database.AttendanceReader, ext FaceExtractor, indexes *database.IndexSet, directory StudentDirectory) *EnrollHandler {
	return &EnrollHandler{
		config:      cfg,
		enrollments: enrollments,
		attendance:  attendance,
		extractor:   ext,
		indexes:     indexes,
		directory:   directory,
	}
}

type enrollResponse struct {
	EnrollmentID int64                `json:"enrollment_id"`
	StudentID    string               `json:"student_id"`
	ClassID      string               `json:"class_id"`
	Version      string               `json:"version"`
	Duplicates   []database.Duplicate `json:"duplicates,omitempty"`
}

// Enroll registers a student's reference face from an uploaded portrait. The
// photo must contain exactly one face. A face too close to another student's
// enrollment is rejected unless force=true, since it would make the two
// students indistinguishable during matching.
func (h *EnrollHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")

	imageData, err := readUploadedPhoto(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	classID := r.FormValue("class_id")
	if classID == "" {
		respondError(w, http.StatusBadRequest, "class_id is required")
		return
	}
	force := r.FormValue("force") == "true"

	extracted, err := h.extractor.ExtractFaces(r.Context(), imageData)
	if err != nil {
		if errors.Is(err, extractor.ErrExtractionFailed) {
			respondError(w, http.StatusBadGateway, "embedding extraction failed")
			return
		}
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	switch len(extracted.Faces) {
	case 1:
		// exactly one face, proceed
	case 0:
		respondError(w, http.StatusUnprocessableEntity, "no face detected in enrollment photo")
		return
	default:
		respondError(w, http.StatusUnprocessableEntity, "enrollment photo must contain exactly one face")
		return
	}
	face := extracted.Faces[0]

	var duplicates []database.Duplicate
	if index := h.indexes.For(extracted.Version); index != nil {
		duplicates, err = index.FindDuplicates(face.Vector, studentID, constants.DuplicateCandidates)
		if err != nil {
			log.Printf("Duplicate check failed for student %s: %v", sanitizeForLog(studentID), err)
			respondError(w, http.StatusInternalServerError, "duplicate check failed")
			return
		}
		if len(duplicates) > 0 && !force {
			respondJSON(w, http.StatusConflict, map[string]any{
				"error":      "face too similar to an already enrolled student",
				"duplicates": duplicates,
			})
			return
		}
	}

	enrollment := database.StoredEnrollment{
		StudentID: studentID,
		ClassID:   classID,
		Version:   string(extracted.Version),
		Embedding: face.Vector,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	id, err := h.enrollments.SaveEnrollment(r.Context(), enrollment)
	if err != nil {
		log.Printf("Failed to save enrollment for student %s: %v", sanitizeForLog(studentID), err)
		respondError(w, http.StatusInternalServerError, "failed to save enrollment")
		return
	}

	if index := h.indexes.For(extracted.Version); index != nil {
		enrollment.ID = id
		if err := index.Add(&enrollment); err != nil {
			log.Printf("Failed to index enrollment %d: %v", id, err)
		}
	}

	respondJSON(w, http.StatusCreated, enrollResponse{
		EnrollmentID: id,
		StudentID:    studentID,
		ClassID:      classID,
		Version:      string(extracted.Version),
		Duplicates:   duplicates,
	})
}

// rosterEntry is one student row in a class roster response.
type rosterEntry struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name,omitempty"`
	Enrolled  bool   `json:"enrolled"`
	Version   string `json:"version,omitempty"`
}

// Roster lists a class's students: everyone known to the school information
// system plus everyone with an active enrollment, merged by student ID.
func (h *EnrollHandler) Roster(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")

	enrollments, err := h.enrollments.GetActiveByClass(r.Context(), classID)
	if err != nil {
		log.Printf("Failed to load enrollments for class %s: %v", sanitizeForLog(classID), err)
		respondError(w, http.StatusInternalServerError, "failed to load enrollments")
		return
	}

	entries := make([]rosterEntry, 0, len(enrollments))
	byID := make(map[string]int)
	for _, e := range enrollments {
		if idx, seen := byID[e.StudentID]; seen {
			// A student can hold one active enrollment per version; report
			// the newest version.
			if entries[idx].Version < e.Version {
				entries[idx].Version = e.Version
			}
			continue
		}
		byID[e.StudentID] = len(entries)
		entries = append(entries, rosterEntry{
			StudentID: e.StudentID,
			Enrolled:  true,
			Version:   e.Version,
		})
	}

	if h.directory != nil {
		students, err := h.directory.ListClassStudents(r.Context(), classID)
		if err != nil {
			log.Printf("SIS lookup failed for class %s: %v", sanitizeForLog(classID), err)
		} else {
			for _, s := range students {
				if idx, seen := byID[s.ID]; seen {
					entries[idx].Name = s.Name
					continue
				}
				byID[s.ID] = len(entries)
				entries = append(entries, rosterEntry{
					StudentID: s.ID,
					Name:      s.Name,
					Enrolled:  false,
				})
			}
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"class_id": classID,
		"students": entries,
	})
}

// History returns a student's persisted attendance records, newest first.
func (h *EnrollHandler) History(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")

	records, err := h.attendance.GetRecordsByStudent(r.Context(), studentID, constants.DefaultHistoryLimit)
	if err != nil {
		log.Printf("Failed to load history for student %s: %v", sanitizeForLog(studentID), err)
		respondError(w, http.StatusInternalServerError, "failed to load attendance history")
		return
	}

	// The display name is a convenience; a SIS outage never hides records.
	var name string
	if h.directory != nil {
		if student, err := h.directory.GetStudent(r.Context(), studentID); err == nil {
			name = student.Name
		}
	}

	resp := map[string]any{
		"student_id": studentID,
		"records":    records,
	}
	if name != "" {
		resp["name"] = name
	}
	respondJSON(w, http.StatusOK, resp)
}
