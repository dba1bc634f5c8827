package cmd

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the feature cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cached identities and sample counts",
	RunE:  runCacheStatus,
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Re-extract identities whose enrollment images changed",
	Long: `Sweep compares every cached sample's freshness token (checksum and
modification time) against its source image and re-extracts only the
identities that changed. New images in the gallery directory are picked
up, samples whose source vanished are dropped.`,
	RunE: runCacheSweep,
}

var cacheRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the whole cache from the gallery directory",
	RunE:  runCacheRebuild,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheSweepCmd)
	cacheCmd.AddCommand(cacheRebuildCmd)
}

func runCacheStatus(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline(cmd.Context())
	if err != nil {
		return err
	}
	defer p.Close()

	identities := p.cache.Identities()
	fmt.Printf("Cache: %s\n", p.cfg.Data.CacheFile())
	fmt.Printf("Identities: %d, samples: %d\n", len(identities), p.cache.SampleCount())
	for _, identity := range identities {
		samples, err := p.cache.Get(identity)
		if err != nil {
			continue
		}
		fmt.Printf("  %-24s %d sample(s)\n", identity, len(samples))
	}
	return nil
}

func runCacheSweep(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline(cmd.Context())
	if err != nil {
		return err
	}
	defer p.Close()

	rebuilt, err := p.rec.SweepStale(cmd.Context())
	if err != nil {
		return err
	}
	if len(rebuilt) == 0 {
		fmt.Println("Cache is fresh, nothing to do")
		return nil
	}
	fmt.Printf("Rebuilt %d identities: %v\n", len(rebuilt), rebuilt)
	return nil
}

func runCacheRebuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	identities := p.cache.Identities()
	bar := progressbar.NewOptions(len(identities),
		progressbar.OptionSetDescription("Rebuilding cache"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	// Invalidate everything, then one sweep re-extracts from source.
	for _, identity := range identities {
		if err := p.cache.Invalidate(identity); err != nil {
			return err
		}
		_ = bar.Add(1)
	}
	fmt.Fprintln(os.Stdout)

	rebuilt, err := p.rec.SweepStale(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Rebuilt %d identities, %d samples cached\n", len(rebuilt), p.cache.SampleCount())
	return nil
}
