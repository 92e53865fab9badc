package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var enrollDirCmd = &cobra.Command{
	Use:   "enroll-dir <directory>",
	Short: "Enroll everyone found in a directory of photos",
	Long: `Enroll people in bulk from a directory of photos.

Two layouts are understood and may be mixed:
  photos/Jana_Dvorakova.jpg       identity taken from the file name
  photos/Jana Dvořáková/*.jpg     identity is the subdirectory name as written

Images are sent to the detector service concurrently. Images without a face
are skipped and reported; the best face of every other image becomes a sample.

Examples:
  # Preview what would be enrolled
  face-attendance enroll-dir ./staff --dry-run

  # Enroll with 8 parallel detector requests
  face-attendance enroll-dir ./staff --concurrency 8`,
	Args: cobra.ExactArgs(1),
	RunE: runEnrollDir,
}

func init() {
	rootCmd.AddCommand(enrollDirCmd)

	enrollDirCmd.Flags().Int("concurrency", constants.DefaultDetectConcurrency, "Number of parallel detector requests")
	enrollDirCmd.Flags().Bool("replace", false, "Replace existing samples of each identity found")
	enrollDirCmd.Flags().Bool("dry-run", false, "Detect faces but do not write to the store")
	enrollDirCmd.Flags().Bool("json", false, "Output as JSON")
	enrollDirCmd.Flags().Bool("verbose", false, "Log store activity")
}

// EnrollDirResult represents the result of a bulk enrollment
type EnrollDirResult struct {
	Success       bool           `json:"success"`
	Images        int            `json:"images"`
	Enrolled      []EnrollResult `json:"enrolled"`
	Skipped       []SkippedImage `json:"skipped"`
	DryRun        bool           `json:"dry_run"`
	DurationMs    int64          `json:"duration_ms"`
	DurationHuman string         `json:"duration_human,omitempty"`

	identities map[string][][]float32
}

// SkippedImage is an image that contributed no sample
type SkippedImage struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// dirImage is one image found in the enrollment directory
type dirImage struct {
	path      string
	name      string
	embedding []float32
	skip      string
}

func runEnrollDir(cmd *cobra.Command, args []string) error {
	root := args[0]
	concurrency := mustGetInt(cmd, "concurrency")
	replace := mustGetBool(cmd, "replace")
	dryRun := mustGetBool(cmd, "dry-run")
	jsonOutput := mustGetBool(cmd, "json")

	if concurrency < 1 {
		return errors.New("concurrency must be at least 1")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	startTime := time.Now()

	images, err := collectDirImages(root)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return fmt.Errorf("no images found in %s", root)
	}
	if !jsonOutput {
		fmt.Printf("Found %d images in %s\n", len(images), root)
	}

	if err := detectDirImages(ctx, newDetector(cfg), images, concurrency, jsonOutput); err != nil {
		return err
	}

	result := summarizeDirImages(images)
	result.DryRun = dryRun

	if !dryRun {
		logger := newLogger(mustGetBool(cmd, "verbose"))
		store, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore(store)

		enroller := facematch.NewEnroller(store, logger)
		for i, entry := range result.Enrolled {
			embeddings := result.identities[entry.Name]
			var samples int
			if replace {
				samples, err = enroller.Replace(ctx, entry.Name, embeddings)
			} else {
				samples, err = enroller.Enroll(ctx, entry.Name, embeddings)
			}
			if err != nil {
				return fmt.Errorf("enrolling %s: %w", entry.Name, err)
			}
			result.Enrolled[i].Samples = samples
			result.Enrolled[i].Replaced = replace
		}
	}

	duration := time.Since(startTime)
	result.Success = true
	result.DurationMs = duration.Milliseconds()
	result.DurationHuman = duration.Round(time.Millisecond).String()

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(result)
	}
	printEnrollDirResult(result)
	return nil
}

// collectDirImages lists the images below root with the identity each belongs to.
func collectDirImages(root string) ([]*dirImage, error) {
	var images []*dirImage
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !detector.IsImageFile(path) {
			return nil
		}
		images = append(images, &dirImage{path: path, name: identityForPath(root, path)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	return images, nil
}

// identityForPath names the identity an image belongs to: its first subdirectory
// below root, taken as written, when there is one, the file name otherwise.
func identityForPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return facematch.NameFromFilename(path)
	}
	if dir, _, found := strings.Cut(filepath.ToSlash(rel), "/"); found {
		return dir
	}
	return facematch.NameFromFilename(path)
}

// detectDirImages fills in the best face of every image. Per-image problems are
// recorded as skips; an unreachable detector aborts the run.
func detectDirImages(ctx context.Context, det detector.Detector, images []*dirImage, concurrency int, quiet bool) error {
	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.NewOptions(len(images),
			progressbar.OptionSetDescription("Detecting faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	var detected atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, img := range images {
		g.Go(func() error {
			defer func() {
				if bar != nil {
					_ = bar.Add(1)
				}
			}()

			if _, err := facematch.CanonicalName(img.name); err != nil {
				img.skip = err.Error()
				return nil
			}
			data, err := os.ReadFile(img.path)
			if err != nil {
				img.skip = err.Error()
				return nil
			}
			detections, err := det.DetectFaces(ctx, data)
			if errors.Is(err, detector.ErrUnavailable) {
				return fmt.Errorf("%s: %w", img.path, err)
			}
			if err != nil {
				img.skip = err.Error()
				return nil
			}
			best, ok := facematch.BestDetection(detections)
			if !ok {
				img.skip = facematch.ErrNoFaceDetected.Error()
				return nil
			}
			img.embedding = best.Embedding
			detected.Add(1)
			return nil
		})
	}
	err := g.Wait()
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return err
	}
	if !quiet {
		fmt.Printf("Faces found in %d of %d images\n", detected.Load(), len(images))
	}
	return nil
}

// summarizeDirImages groups detected faces by identity, sorted by name.
func summarizeDirImages(images []*dirImage) *EnrollDirResult {
	result := &EnrollDirResult{
		Images:     len(images),
		Enrolled:   []EnrollResult{},
		Skipped:    []SkippedImage{},
		identities: make(map[string][][]float32),
	}
	for _, img := range images {
		if img.embedding == nil {
			result.Skipped = append(result.Skipped, SkippedImage{Path: img.path, Reason: img.skip})
			continue
		}
		name, _ := facematch.CanonicalName(img.name)
		result.identities[name] = append(result.identities[name], img.embedding)
	}

	names := make([]string, 0, len(result.identities))
	for name := range result.identities {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		result.Enrolled = append(result.Enrolled, EnrollResult{Name: name, Added: len(result.identities[name])})
	}
	return result
}

func printEnrollDirResult(result *EnrollDirResult) {
	if result.DryRun {
		fmt.Println("Dry run, nothing was written:")
	}
	for _, e := range result.Enrolled {
		if result.DryRun {
			fmt.Printf("  %-30s %d samples\n", e.Name, e.Added)
		} else {
			fmt.Printf("  %-30s +%d (total %d)\n", e.Name, e.Added, e.Samples)
		}
	}
	if len(result.Skipped) > 0 {
		fmt.Printf("\nSkipped %d images:\n", len(result.Skipped))
		for _, s := range result.Skipped {
			fmt.Printf("  %s: %s\n", s.Path, s.Reason)
		}
	}
	fmt.Printf("\n%d identities from %d images in %s\n", len(result.Enrolled), result.Images, result.DurationHuman)
}
