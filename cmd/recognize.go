package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Recognize the faces in a single image",
	Long: `Run one image through the detector and match every face against the
enrolled identities, exactly as the API does for a webcam frame.

Examples:
  face-attendance recognize frame.jpg
  face-attendance recognize frame.jpg --threshold 0.3 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Float64("threshold", -1, "Maximum accepted distance (default from config)")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
}

// RecognizedFace represents one face in the recognize output
type RecognizedFace struct {
	Box      facematch.BoundingBox `json:"box"`
	Label    string                `json:"label"`
	Distance *float64              `json:"distance"`
	Known    bool                  `json:"known"`
}

func runRecognize(cmd *cobra.Command, args []string) error {
	threshold := mustGetFloat64(cmd, "threshold")
	jsonOutput := mustGetBool(cmd, "json")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	store, err := openStore(ctx, cfg, newLogger(false))
	if err != nil {
		return err
	}
	defer closeStore(store)

	recognizer, err := newRecognizer(cfg, store, threshold)
	if err != nil {
		return err
	}

	detections, err := newDetector(cfg).DetectFaces(ctx, data)
	if err != nil {
		return err
	}
	results, err := recognizer.Recognize(detections)
	if err != nil {
		return err
	}

	faces := make([]RecognizedFace, len(results))
	for i, res := range results {
		faces[i] = RecognizedFace{Box: res.Box, Label: res.Label, Known: res.Known()}
		if !math.IsInf(res.Distance, 0) {
			faces[i].Distance = &res.Distance
		}
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(faces)
	}

	if len(faces) == 0 {
		fmt.Println("No faces detected")
		return nil
	}
	fmt.Printf("%d face(s), threshold %.2f:\n", len(faces), recognizer.Threshold())
	for i, f := range faces {
		dist := "n/a"
		if f.Distance != nil {
			dist = fmt.Sprintf("%.4f", *f.Distance)
		}
		fmt.Printf("  #%d %-30s distance %-8s box (%.0f,%.0f %.0fx%.0f)\n",
			i+1, f.Label, dist, f.Box.X, f.Box.Y, f.Box.Width, f.Box.Height)
	}
	return nil
}
