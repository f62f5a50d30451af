package cmd

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/attendance-kiosk/internal/gallery"
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Precompute descriptors for all reference photos",
	Long: `Walk the directory's reference photos for a tenant and compute their
feature descriptors, so the first kiosk requests don't pay the extraction
cost.`,
	RunE: runWarm,
}

func init() {
	rootCmd.AddCommand(warmCmd)

	warmCmd.Flags().String("tenant", "", "Tenant (school) identifier (required)")
	warmCmd.Flags().String("kind", string(gallery.KindStudent), "Subject kind: STUDENT or STAFF")

	warmCmd.MarkFlagRequired("tenant")
}

func runWarm(cmd *cobra.Command, args []string) error {
	tenant := mustGetString(cmd, "tenant")
	kind, err := parseKind(mustGetString(cmd, "kind"))
	if err != nil {
		return err
	}

	p, err := buildPipeline(zap.NewNop())
	if err != nil {
		return err
	}
	defer p.Close()

	ctx := context.Background()

	// First pass collects the photo paths so the bar has a total.
	var paths []string
	for entry, err := range p.directory.Candidates(ctx, tenant, kind, nil) {
		if err != nil {
			return fmt.Errorf("listing candidates: %w", err)
		}
		for _, img := range entry.Images {
			paths = append(paths, img.Path)
		}
	}

	if len(paths) == 0 {
		fmt.Println("No reference photos found")
		return nil
	}

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Extracting descriptors"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	warmed, failed := 0, 0
	for _, path := range paths {
		if _, err := p.cache.Descriptors(path); err != nil {
			failed++
		} else {
			warmed++
		}
		bar.Add(1)
	}
	fmt.Println()

	fmt.Printf("Warmed %d photos (%d unreadable), cache holds %d entries\n", warmed, failed, p.cache.Len())
	return nil
}
