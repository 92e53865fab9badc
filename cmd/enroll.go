package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <name> [image...]",
	Short: "Enroll a person from photos or precomputed embeddings",
	Long: `Enroll a person under the given name.

Each image is sent to the detector service and its best face is stored as one
sample. Alternatively --embeddings reads a JSON array of vectors computed
elsewhere. Enrolling an existing name adds samples unless --replace is set.

Examples:
  # Enroll from two photos
  face-attendance enroll "Jana Dvořáková" jana1.jpg jana2.jpg

  # Replace all samples with precomputed vectors
  face-attendance enroll "Jana Dvořáková" --embeddings jana.json --replace`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("embeddings", "", "JSON file with an array of embedding vectors")
	enrollCmd.Flags().Bool("replace", false, "Replace existing samples instead of adding to them")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
	enrollCmd.Flags().Bool("verbose", false, "Log store activity")
}

// EnrollResult represents the result of an enroll operation
type EnrollResult struct {
	Name       string `json:"name"`
	Added      int    `json:"added"`
	Samples    int    `json:"samples"`
	Replaced   bool   `json:"replaced"`
	DurationMs int64  `json:"duration_ms"`
}

func runEnroll(cmd *cobra.Command, args []string) error {
	name, images := args[0], args[1:]
	embeddingsFile := mustGetString(cmd, "embeddings")
	replace := mustGetBool(cmd, "replace")
	jsonOutput := mustGetBool(cmd, "json")

	if embeddingsFile == "" && len(images) == 0 {
		return errors.New("provide at least one image or --embeddings")
	}
	if embeddingsFile != "" && len(images) > 0 {
		return errors.New("images and --embeddings are mutually exclusive")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	startTime := time.Now()

	var embeddings [][]float32
	if embeddingsFile != "" {
		embeddings, err = readEmbeddingsFile(embeddingsFile)
	} else {
		embeddings, err = detectEnrollmentFaces(ctx, cfg, images, jsonOutput)
	}
	if err != nil {
		return err
	}

	logger := newLogger(mustGetBool(cmd, "verbose"))
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore(store)

	enroller := facematch.NewEnroller(store, logger)
	var samples int
	if replace {
		samples, err = enroller.Replace(ctx, name, embeddings)
	} else {
		samples, err = enroller.Enroll(ctx, name, embeddings)
	}
	if err != nil {
		return err
	}

	canonical, _ := facematch.CanonicalName(name)
	result := EnrollResult{
		Name:       canonical,
		Added:      len(embeddings),
		Samples:    samples,
		Replaced:   replace,
		DurationMs: time.Since(startTime).Milliseconds(),
	}
	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	verb := "Enrolled"
	if replace {
		verb = "Replaced"
	}
	fmt.Printf("%s %s: %d new samples, %d total\n", verb, result.Name, result.Added, result.Samples)
	return nil
}

// readEmbeddingsFile reads a JSON array of embedding vectors.
func readEmbeddingsFile(path string) ([][]float32, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("reading embeddings: %w", err)
	}
	var embeddings [][]float32
	if err := json.Unmarshal(data, &embeddings); err != nil {
		return nil, fmt.Errorf("parsing embeddings %s: %w", path, err)
	}
	return embeddings, nil
}

// detectEnrollmentFaces sends every image to the detector and keeps the best face
// of each. An image without a face fails the enrollment.
func detectEnrollmentFaces(ctx context.Context, cfg *config.Config, images []string, quiet bool) ([][]float32, error) {
	client := newDetector(cfg)

	embeddings := make([][]float32, 0, len(images))
	for _, path := range images {
		data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
		if err != nil {
			return nil, fmt.Errorf("reading image: %w", err)
		}
		detections, err := client.DetectFaces(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		best, ok := facematch.BestDetection(detections)
		if !ok {
			return nil, fmt.Errorf("%s: %w", path, facematch.ErrNoFaceDetected)
		}
		if !quiet {
			fmt.Printf("  %s: %d face(s), using score %.2f\n", path, len(detections), best.Score)
		}
		embeddings = append(embeddings, best.Embedding)
	}
	return embeddings, nil
}
