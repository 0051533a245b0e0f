package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/encoder"
	"github.com/kozaktomas/rollcall/internal/enroll"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/kozaktomas/rollcall/internal/logging"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Build the gallery from student photo folders",
	Long: `Build the gallery from Students/<Name>/ photo folders.

Every image is sent to the embedding service; images with exactly one face
contribute an encoding. Folder names are matched against the roster ignoring
case and diacritics. The new gallery replaces the stored artifact, and a
running server can be told to pick it up with --reload-url.

Examples:
  # Train from ./Students with the default worker count
  rollcall train

  # Train and reload a running server
  rollcall train --dir /data/Students --reload-url http://localhost:5001

  # JSON output for scripting
  rollcall train --json`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().String("dir", "Students", "Directory with one sub-folder of photos per student")
	trainCmd.Flags().Int("concurrency", constants.WorkerPoolSize, "Number of parallel encoder calls")
	trainCmd.Flags().String("reload-url", "", "Base URL of a running server to reload afterwards")
	trainCmd.Flags().Bool("dry-run", false, "Encode and report without saving the gallery")
	trainCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

// TrainResult represents the result of a training run
type TrainResult struct {
	Success       bool         `json:"success"`
	Identities    int          `json:"identities"`
	Encodings     int          `json:"encodings"`
	Images        enroll.Stats `json:"images"`
	Added         []string     `json:"added"`
	Removed       []string     `json:"removed"`
	Skipped       []string     `json:"skipped"`
	Excluded      []string     `json:"excluded"`
	Warnings      []string     `json:"warnings"`
	Saved         bool         `json:"saved"`
	Reloaded      bool         `json:"reloaded"`
	DurationMs    int64        `json:"duration_ms"`
	DurationHuman string       `json:"duration_human,omitempty"`
}

func runTrain(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	concurrency := mustGetInt(cmd, "concurrency")
	reloadURL := mustGetString(cmd, "reload-url")
	dryRun := mustGetBool(cmd, "dry-run")
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	cfg := config.Load()
	log := logging.New(cfg.Log)
	startTime := time.Now()

	b := newBackends(cfg, log)
	defer b.Close()

	src, sink, err := b.gallerySource(ctx)
	if err != nil {
		return err
	}
	students, err := b.roster(ctx)
	if err != nil {
		return err
	}

	folders, err := enroll.Scan(dir)
	if err != nil {
		return err
	}
	if len(folders) == 0 {
		return fmt.Errorf("no student folders found in %s", dir)
	}
	folders, identities := enroll.Resolve(folders, students)
	if students.Len() == 0 && !jsonOutput {
		fmt.Println("No roster found, using folder names as students (no roll numbers)")
	}

	images := 0
	for _, f := range folders {
		images += len(f.Images)
	}
	if !jsonOutput {
		fmt.Printf("Found %d students with %d images in %s\n\n", len(folders), images, dir)
	}

	// Create progress bar (only for non-JSON output)
	var bar *progressbar.ProgressBar
	var tick func()
	if !jsonOutput {
		bar = progressbar.NewOptions(images,
			progressbar.OptionSetDescription("Encoding faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
		tick = func() { bar.Add(1) }
	}

	client := encoder.NewClient(cfg.Encoder, log)
	encodings, stats := enroll.Encode(ctx, client, folders, concurrency, log, tick)
	if bar != nil {
		fmt.Println()
	}

	// The previous gallery is only needed for the added/removed report.
	prev, err := gallery.Load(ctx, src)
	if err != nil {
		log.WithError(err).Debug("no previous gallery")
	}

	next, report, err := gallery.Rebuild(prev, identities, encodings)
	if err != nil {
		return err
	}
	if next.Len() == 0 {
		return errors.New("no student has a usable encoding, gallery not saved")
	}

	result := TrainResult{
		Success:    true,
		Identities: next.Len(),
		Encodings:  next.EntryCount(),
		Images:     stats,
		Added:      report.Added,
		Removed:    report.Removed,
		Skipped:    report.Skipped,
		Excluded:   report.Excluded,
		Warnings:   report.Warnings,
	}

	if !dryRun {
		if err := sink.SaveArtifact(ctx, next.Artifact()); err != nil {
			return fmt.Errorf("failed to save gallery: %w", err)
		}
		result.Saved = true

		if reloadURL != "" {
			reloadCtx, cancel := context.WithTimeout(ctx, constants.ReloadTimeout)
			_, err := triggerReload(reloadCtx, reloadURL)
			cancel()
			if err != nil {
				log.WithError(err).Warn("server reload failed")
			} else {
				result.Reloaded = true
			}
		}
	}

	duration := time.Since(startTime)
	result.DurationMs = duration.Milliseconds()

	if jsonOutput {
		return outputJSON(result)
	}
	result.DurationHuman = formatDuration(duration)

	// Human-readable output
	fmt.Println("\nTraining complete!")
	fmt.Printf("  Students:       %d\n", result.Identities)
	fmt.Printf("  Encodings:      %d of %d images\n", result.Encodings, stats.Images)
	if stats.NoFace > 0 {
		fmt.Printf("  No face:        %d\n", stats.NoFace)
	}
	if stats.MultiFace > 0 {
		fmt.Printf("  Several faces:  %d\n", stats.MultiFace)
	}
	if stats.Failed > 0 {
		fmt.Printf("  Errors:         %d\n", stats.Failed)
	}
	printNames("Added", result.Added)
	printNames("Removed", result.Removed)
	printNames("Skipped (not on roster)", result.Skipped)
	printNames("Excluded (no usable photo)", result.Excluded)
	for _, w := range result.Warnings {
		fmt.Printf("  Warning: %s\n", w)
	}
	switch {
	case dryRun:
		fmt.Println("  Dry run, gallery not saved")
	case result.Reloaded:
		fmt.Printf("  Saved to %s and reloaded %s\n", src.Describe(), reloadURL)
	default:
		fmt.Printf("  Saved to %s\n", src.Describe())
	}
	fmt.Printf("  Duration:       %s\n", result.DurationHuman)

	return nil
}
