package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/classlens/classlens/internal/config"
	"github.com/classlens/classlens/internal/constants"
	"github.com/classlens/classlens/internal/database"
	"github.com/classlens/classlens/internal/database/postgres"
	"github.com/classlens/classlens/internal/extractor"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <student-id> <photo>",
	Short: "Enroll a student's reference face from a portrait photo",
	Long: `Enroll a student's reference face from a portrait photo file.
The photo must contain exactly one face. The embedding replaces any prior
active enrollment for the same student and encoding version.

Examples:
  # Enroll a student into class 7a
  classlens enroll stu-123 portraits/stu-123.jpg --class 7a

  # Replace an enrollment even when the face collides with another student
  classlens enroll stu-123 portraits/stu-123.jpg --class 7a --force`,
	Args: cobra.ExactArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("class", "", "Class the student belongs to (required)")
	enrollCmd.Flags().Bool("force", false, "Enroll even when the face collides with another student")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	studentID, photoPath := args[0], args[1]
	classID := mustGetString(cmd, "class")
	force := mustGetBool(cmd, "force")

	if classID == "" {
		return errors.New("--class is required")
	}

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	imageData, err := os.ReadFile(photoPath)
	if err != nil {
		return fmt.Errorf("reading photo: %w", err)
	}

	ctx := context.Background()
	client := extractor.NewClient(cfg.Extractor.URL)
	result, err := client.ExtractFaces(ctx, imageData)
	if err != nil {
		return fmt.Errorf("extracting face: %w", err)
	}
	if len(result.Faces) != 1 {
		return fmt.Errorf("portrait must contain exactly one face, found %d", len(result.Faces))
	}
	face := result.Faces[0]

	enrollmentRepo := postgres.NewEnrollmentRepository(postgres.GetGlobalPool())

	// Duplicate check against every active enrollment of the same version.
	index := database.NewDuplicateIndex(result.Version)
	active, err := enrollmentRepo.GetAllActive(ctx)
	if err != nil {
		return fmt.Errorf("loading active enrollments: %w", err)
	}
	if err := index.BuildFromEnrollments(active); err != nil {
		return fmt.Errorf("building duplicate index: %w", err)
	}
	duplicates, err := index.FindDuplicates(face.Vector, studentID, constants.DuplicateCandidates)
	if err != nil {
		return fmt.Errorf("duplicate check: %w", err)
	}
	if len(duplicates) > 0 {
		for _, d := range duplicates {
			fmt.Printf("Warning: face is close to student %s (distance %.3f)\n", d.StudentID, d.Distance)
		}
		if !force {
			return errors.New("face collides with an already enrolled student, use --force to enroll anyway")
		}
	}

	id, err := enrollmentRepo.SaveEnrollment(ctx, database.StoredEnrollment{
		StudentID: studentID,
		ClassID:   classID,
		Version:   string(result.Version),
		Embedding: face.Vector,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("saving enrollment: %w", err)
	}

	fmt.Printf("Enrolled %s into class %s (enrollment %d, %s)\n", studentID, classID, id, result.Version)
	return nil
}
