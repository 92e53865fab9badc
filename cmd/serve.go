package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance API server",
	Long: `Start the HTTP API used by the attendance kiosk.

The kiosk posts a webcam frame to /api/v1/recognize/frame about once a second
and shows the returned names. Enrollment and identity administration are
available under the same /api/v1 prefix.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Bool("no-detector", false, "Serve without the detector service (image endpoints answer 503)")
	serveCmd.Flags().Bool("verbose", false, "Log store and enrollment activity")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	logger := newLogger(mustGetBool(cmd, "verbose"))
	ctx := context.Background()

	fmt.Printf("Opening %s embedding store...\n", cfg.Store.Backend)
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore(store)
	fmt.Printf("Loaded %d samples of %d identities (dim %d)\n", store.Len(), len(store.Identities()), store.Dim())

	recognizer, err := newRecognizer(cfg, store, -1)
	if err != nil {
		return err
	}

	deps := web.Deps{
		Store:      store,
		Recognizer: recognizer,
		Enroller:   facematch.NewEnroller(store, logger),
	}
	if !mustGetBool(cmd, "no-detector") {
		deps.Detector = newDetector(cfg)
		fmt.Printf("Using face detector at %s\n", cfg.Detector.URL)
	}

	server := web.NewServer(cfg, deps)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Closed once in-flight requests have drained, so the store is closed after them.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, constants.ShutdownTimeoutSeconds*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Attendance API on http://%s/api/v1\n", cfg.Web.Addr())
	fmt.Printf("Matching: %s metric, threshold %.2f, duplicates %s, index %s\n",
		cfg.Matching.Metric, recognizer.Threshold(), recognizer.Policy(), cfg.Index.Mode)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-shutdownDone
	return nil
}
