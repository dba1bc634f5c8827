package cmd

import (
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Match a single photo against the gallery",
	Long: `Recognize runs one photo through the pipeline: detect the largest
face, extract its features, score it against every enrolled identity and,
on a match at or above the tolerance, record today's attendance.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)
	recognizeCmd.Flags().Bool("json", false, "Output the full result as JSON")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	event, err := p.rec.Recognize(ctx, img)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(event)
	}

	switch {
	case event.NoFace:
		fmt.Println("No face detected")
	case !event.Result.Matched:
		fmt.Printf("No match (best score %.3f, tolerance %.2f)\n",
			event.Result.Score, p.cfg.Face.Tolerance)
	default:
		fmt.Printf("Matched %s (score %.3f)\n", event.Result.Identity, event.Result.Score)
		if event.Mark != nil {
			status := "on time"
			if event.Mark.Late {
				status = "late"
			}
			fmt.Printf("Attendance recorded for %s at %s (%s)\n",
				event.Mark.Identity, event.Mark.At.Format("15:04:05"), status)
		} else {
			fmt.Println("Already checked in today")
		}
	}
	return nil
}
