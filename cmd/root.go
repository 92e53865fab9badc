package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "face-attendance",
	Short: "Face recognition attendance from webcam frames",
	Long: `Face Attendance matches faces seen by a webcam against enrolled people.

Faces are located and embedded by an external detector service; this tool keeps
the enrolled embeddings, decides who is in each frame and exposes the whole
thing over an HTTP API for the attendance kiosk.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides FACES_CONFIG)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	if configFile != "" {
		_ = os.Setenv("FACES_CONFIG", configFile)
	}
}
