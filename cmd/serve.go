package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/classlens/classlens/internal/config"
	"github.com/classlens/classlens/internal/database"
	"github.com/classlens/classlens/internal/database/postgres"
	"github.com/classlens/classlens/internal/embedding"
	"github.com/classlens/classlens/internal/extractor"
	"github.com/classlens/classlens/internal/roster"
	"github.com/classlens/classlens/internal/session"
	"github.com/classlens/classlens/internal/sis"
	"github.com/classlens/classlens/internal/web"
	"github.com/classlens/classlens/internal/web/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance API server",
	Long: `Start the ClassLens API server.
The server exposes the session lifecycle (start, photo upload, manual marks,
submit, close), student enrollment and class roster endpoints.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// buildDuplicateIndexes prepares one in-memory duplicate index per encoding
// version. Each index is loaded from disk when a saved graph still matches
// the active enrollments, and rebuilt from the database otherwise.
func buildDuplicateIndexes(ctx context.Context, enrollments database.EnrollmentReader, indexPath string) (*database.IndexSet, error) {
	active, err := enrollments.GetAllActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active enrollments: %w", err)
	}

	indexes := database.NewIndexSet()
	for _, version := range []embedding.Version{embedding.LegacyV1, embedding.ArcFaceV4} {
		index := database.NewDuplicateIndex(version)

		loaded := false
		if indexPath != "" {
			path := fmt.Sprintf("%s.%s", indexPath, version)
			loaded, err = index.LoadFromDisk(path, active)
			if err != nil {
				fmt.Printf("Warning: loading %s duplicate index: %v (will rebuild)\n", version, err)
			}
		}

		if loaded {
			fmt.Printf("Duplicate index loaded from disk with %d %s enrollments\n", index.Count(), version)
		} else {
			if err := index.BuildFromEnrollments(active); err != nil {
				return nil, fmt.Errorf("building %s index: %w", version, err)
			}
			fmt.Printf("Duplicate index rebuilt with %d %s enrollments\n", index.Count(), version)
		}
		indexes.Put(index)
	}
	return indexes, nil
}

// saveDuplicateIndexes persists the indexes to disk during shutdown.
func saveDuplicateIndexes(indexes *database.IndexSet) {
	for _, index := range indexes.All() {
		if err := index.Save(); err != nil {
			fmt.Printf("Warning: failed to save %s duplicate index: %v\n", index.Version(), err)
		}
	}
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	pool := postgres.GetGlobalPool()
	enrollmentRepo := postgres.NewEnrollmentRepository(pool)
	attendanceRepo := postgres.NewAttendanceRepository(pool)

	indexes, err := buildDuplicateIndexes(context.Background(), enrollmentRepo, cfg.Database.HNSWIndexPath)
	if err != nil {
		return err
	}

	// The school information system is optional; without it rosters carry
	// student IDs only.
	var directory handlers.StudentDirectory
	if cfg.SIS.DatabaseURL != "" {
		sisPool, err := sis.NewPool(cfg.SIS.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to SIS database: %w", err)
		}
		defer sisPool.Close()
		directory = sisPool
		fmt.Println("SIS roster lookup enabled (MariaDB)")
	}

	port, host := resolveServeHostPort(cmd)

	server := web.NewServer(cfg, port, host, web.Deps{
		Sessions:    session.NewManager(),
		Roster:      roster.NewStore(enrollmentRepo),
		Extractor:   extractor.NewClient(cfg.Extractor.URL),
		Enrollments: enrollmentRepo,
		Attendance:  attendanceRepo,
		Indexes:     indexes,
		Directory:   directory,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		saveDuplicateIndexes(indexes)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting ClassLens API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
