package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "classlens",
	Short: "Classroom attendance from face recognition",
	Long: `ClassLens turns classroom photos into attendance records. Teachers enroll
each student's reference face once, then photograph the class; the service
matches detected faces against the roster, accumulates marks across photos
and freezes them into an immutable record set on submit.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
