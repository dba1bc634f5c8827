package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amosdev/attendance/internal/camera"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run continuous recognition over a camera stream",
	Long: `Watch pulls frames from the configured camera snapshot URL (or a
directory of images with --frames) and recognizes each one. Frames are
dropped rather than queued when recognition is slower than capture, so
the loop always works on the freshest frame. Each enrolled person is
marked at most once per day.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().String("frames", "", "Replay a directory of images instead of polling the camera")
	watchCmd.Flags().Int("duration", 0, "Stop after this many seconds (0 = run until interrupted)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if secs := mustGetInt(cmd, "duration"); secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	var src camera.Source
	if dir := mustGetString(cmd, "frames"); dir != "" {
		src, err = camera.NewDirSource(dir)
		if err != nil {
			return err
		}
	} else {
		if p.cfg.Camera.URL == "" {
			return errors.New("no camera configured: set CAMERA_URL or use --frames")
		}
		src = camera.NewHTTPSource(p.cfg.Camera.URL,
			time.Duration(p.cfg.Camera.IntervalMS)*time.Millisecond)
	}
	defer src.Close()

	fmt.Printf("Watching with %d enrolled identities, tolerance %.2f\n",
		len(p.cache.Identities()), p.cfg.Face.Tolerance)

	frames, matches := 0, 0
	for event := range p.rec.Watch(ctx, src) {
		frames++
		switch {
		case event.Err != nil:
			fmt.Printf("[%s] error: %v\n", event.At.Format("15:04:05"), event.Err)
		case event.NoFace:
			// quiet, empty frames dominate a live stream
		case !event.Result.Matched:
			fmt.Printf("[%s] unknown face (best %.3f)\n",
				event.At.Format("15:04:05"), event.Result.Score)
		default:
			matches++
			if event.Mark != nil {
				status := "on time"
				if event.Mark.Late {
					status = "late"
				}
				fmt.Printf("[%s] %s checked in (%s, score %.3f)\n",
					event.At.Format("15:04:05"), event.Result.Identity, status, event.Result.Score)
			} else {
				fmt.Printf("[%s] %s seen again (score %.3f)\n",
					event.At.Format("15:04:05"), event.Result.Identity, event.Result.Score)
			}
		}
	}

	fmt.Printf("Processed %d frame(s), %d match(es)\n", frames, matches)
	return nil
}
