package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/classlens/classlens/internal/config"
	"github.com/classlens/classlens/internal/database"
	"github.com/classlens/classlens/internal/database/postgres"
	"github.com/classlens/classlens/internal/embedding"
	"github.com/classlens/classlens/internal/extractor"
	"github.com/classlens/classlens/internal/sis"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Re-enroll legacy students on the current encoding version",
	Long: `Re-enroll every student who only has a legacy-v1 embedding by running their
portrait through the current embedding model. Portraits are read from a
directory of <student-id>.jpg files; when SIS_DATABASE_URL is set, files
named after the student ("Jan Novák.jpg") are matched too. Legacy
enrollments stay active as a fallback until the whole class is migrated.

Examples:
  # Preview which students would be migrated
  classlens migrate --portraits ./portraits --dry-run

  # Migrate for real
  classlens migrate --portraits ./portraits`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().String("portraits", "", "Directory of <student-id>.jpg portrait files (required)")
	migrateCmd.Flags().String("class", "", "Only migrate students of this class")
	migrateCmd.Flags().Bool("dry-run", false, "List students without writing anything")
}

// portraitFor finds a student's portrait file in the given directory.
func portraitFor(dir, studentID string) (string, bool) {
	for _, ext := range []string{".jpg", ".jpeg", ".png"} {
		path := filepath.Join(dir, studentID+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// portraitByName matches a portrait file by the student's display name.
// Photographers deliver portrait dumps named "Jan Novák.jpg" rather than by
// student ID, so names are normalized on both sides before comparison.
func portraitByName(dir, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}

	want := sis.NormalizeStudentName(name)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
			continue
		}
		base := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if sis.NormalizeStudentName(base) == want {
			return filepath.Join(dir, entry.Name()), true
		}
	}
	return "", false
}

// resolvePortrait finds a student's portrait, by ID-named file first, then
// by SIS display name when a directory connection is available.
func resolvePortrait(ctx context.Context, dir string, directory *sis.Pool, studentID string) (string, bool) {
	if path, ok := portraitFor(dir, studentID); ok {
		return path, true
	}
	if directory == nil {
		return "", false
	}
	student, err := directory.GetStudent(ctx, studentID)
	if err != nil {
		return "", false
	}
	return portraitByName(dir, student.Name)
}

// legacyOnlyStudents returns enrollments of students who are active on
// legacy-v1 and have no current-version enrollment yet.
func legacyOnlyStudents(active []database.StoredEnrollment, classID string) []database.StoredEnrollment {
	current := make(map[string]bool)
	for _, e := range active {
		if e.Version == string(embedding.ArcFaceV4) {
			current[e.StudentID] = true
		}
	}

	var out []database.StoredEnrollment
	for _, e := range active {
		if e.Version != string(embedding.LegacyV1) || current[e.StudentID] {
			continue
		}
		if classID != "" && e.ClassID != classID {
			continue
		}
		out = append(out, e)
	}
	return out
}

func runMigrate(cmd *cobra.Command, args []string) error {
	portraitsDir := mustGetString(cmd, "portraits")
	classID := mustGetString(cmd, "class")
	dryRun := mustGetBool(cmd, "dry-run")

	if portraitsDir == "" {
		return errors.New("--portraits is required")
	}

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	ctx := context.Background()
	enrollmentRepo := postgres.NewEnrollmentRepository(postgres.GetGlobalPool())

	active, err := enrollmentRepo.GetAllActive(ctx)
	if err != nil {
		return fmt.Errorf("loading active enrollments: %w", err)
	}

	var directory *sis.Pool
	if cfg.SIS.DatabaseURL != "" {
		directory, err = sis.NewPool(cfg.SIS.DatabaseURL)
		if err != nil {
			fmt.Printf("Warning: SIS unavailable, matching portraits by student ID only: %v\n", err)
		} else {
			defer directory.Close()
		}
	}

	pending := legacyOnlyStudents(active, classID)
	if len(pending) == 0 {
		fmt.Println("Nothing to migrate, every student is on the current version")
		return nil
	}
	fmt.Printf("Found %d students still on %s\n", len(pending), embedding.LegacyV1)

	if dryRun {
		for _, e := range pending {
			if _, ok := resolvePortrait(ctx, portraitsDir, directory, e.StudentID); !ok {
				fmt.Printf("  %s (class %s) - portrait MISSING\n", e.StudentID, e.ClassID)
				continue
			}
			fmt.Printf("  %s (class %s)\n", e.StudentID, e.ClassID)
		}
		return nil
	}

	client := extractor.NewClient(cfg.Extractor.URL)

	bar := progressbar.NewOptions(len(pending),
		progressbar.OptionSetDescription("Migrating enrollments"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("students"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	migrated, missing, failed := 0, 0, 0
	for _, e := range pending {
		bar.Add(1)

		path, ok := resolvePortrait(ctx, portraitsDir, directory, e.StudentID)
		if !ok {
			missing++
			continue
		}

		imageData, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("\nWarning: reading %s: %v\n", path, err)
			failed++
			continue
		}

		result, err := client.ExtractFaces(ctx, imageData)
		if err != nil {
			fmt.Printf("\nWarning: extracting %s: %v\n", e.StudentID, err)
			failed++
			continue
		}
		if result.Version != embedding.ArcFaceV4 {
			return fmt.Errorf("extractor still produces %s embeddings, point EXTRACTOR_URL at the current model", result.Version)
		}
		if len(result.Faces) != 1 {
			fmt.Printf("\nWarning: portrait of %s has %d faces, skipping\n", e.StudentID, len(result.Faces))
			failed++
			continue
		}

		_, err = enrollmentRepo.SaveEnrollment(ctx, database.StoredEnrollment{
			StudentID: e.StudentID,
			ClassID:   e.ClassID,
			Version:   string(embedding.ArcFaceV4),
			Embedding: result.Faces[0].Vector,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			fmt.Printf("\nWarning: saving enrollment for %s: %v\n", e.StudentID, err)
			failed++
			continue
		}
		migrated++
	}

	fmt.Printf("\nMigrated %d students (%d portraits missing, %d failed)\n", migrated, missing, failed)
	return nil
}
