package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/encoder"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/kozaktomas/rollcall/internal/logging"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect the stored gallery",
}

var galleryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List the students in the gallery",
	RunE:  runGalleryShow,
}

var galleryDiffCmd = &cobra.Command{
	Use:   "diff <old-artifact> [new-artifact]",
	Short: "Compare two gallery artifacts",
	Long: `Compare two gallery artifact files. When the new artifact is omitted the
configured gallery source is used.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGalleryDiff,
}

var galleryNearestCmd = &cobra.Command{
	Use:   "nearest <image>",
	Short: "List the gallery students closest to the face in an image",
	Long: `Diagnostic lookup through the approximate nearest-neighbour index.
Nothing is recorded.`,
	Args: cobra.ExactArgs(1),
	RunE: runGalleryNearest,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryShowCmd, galleryDiffCmd, galleryNearestCmd)

	galleryShowCmd.Flags().Bool("json", false, "Output as JSON")
	galleryNearestCmd.Flags().Int("k", constants.DefaultNearestK, "Number of students to list")
}

// loadConfiguredGallery loads the gallery from the configured source.
func loadConfiguredGallery(ctx context.Context, b *backends) (*gallery.Gallery, gallery.Source, error) {
	src, _, err := b.gallerySource(ctx)
	if err != nil {
		return nil, nil, err
	}
	g, err := gallery.Load(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	return g, src, nil
}

// GalleryStudent is one row of `gallery show`
type GalleryStudent struct {
	Name      string            `json:"name"`
	RollNo    string            `json:"roll_no,omitempty"`
	Class     *gallery.ClassTag `json:"class,omitempty"`
	Encodings int               `json:"encodings"`
}

func runGalleryShow(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	ctx := context.Background()
	cfg := config.Load()

	b := newBackends(cfg, logging.New(cfg.Log))
	defer b.Close()

	g, src, err := loadConfiguredGallery(ctx, b)
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	for _, e := range g.Entries() {
		counts[e.Name]++
	}
	students := make([]GalleryStudent, 0, g.Len())
	for _, id := range g.Identities() {
		students = append(students, GalleryStudent{
			Name:      id.Name,
			RollNo:    id.RollNo,
			Class:     id.Class,
			Encodings: counts[id.Name],
		})
	}

	if jsonOutput {
		return outputJSON(students)
	}

	fmt.Printf("Gallery from %s: %d students, %d encodings, dimension %d\n\n", src.Describe(), g.Len(), g.EntryCount(), g.Dim())
	fmt.Printf("%-30s %-12s %-16s %s\n", "NAME", "ROLL NO", "CLASS", "ENCODINGS")
	for _, s := range students {
		class := "-"
		if s.Class != nil {
			class = classLabel(s.Class.Department, s.Class.Year, s.Class.Division)
		}
		roll := s.RollNo
		if roll == "" {
			roll = "-"
		}
		fmt.Printf("%-30s %-12s %-16s %d\n", s.Name, roll, class, s.Encodings)
	}
	return nil
}

func runGalleryDiff(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	b := newBackends(cfg, logging.New(cfg.Log))
	defer b.Close()

	prev, err := gallery.Load(ctx, gallery.NewFileSource(args[0]))
	if err != nil {
		return err
	}

	var next *gallery.Gallery
	if len(args) == 2 {
		next, err = gallery.Load(ctx, gallery.NewFileSource(args[1]))
	} else {
		next, _, err = loadConfiguredGallery(ctx, b)
	}
	if err != nil {
		return err
	}

	added, removed := gallery.Diff(prev, next)
	fmt.Printf("%d students before, %d after\n", prev.Len(), next.Len())
	if len(added) == 0 && len(removed) == 0 {
		fmt.Println("No students added or removed")
		return nil
	}
	printNames("Added", added)
	printNames("Removed", removed)
	return nil
}

func runGalleryNearest(cmd *cobra.Command, args []string) error {
	k := mustGetInt(cmd, "k")
	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	ctx := context.Background()
	cfg := config.Load()
	log := logging.New(cfg.Log)

	b := newBackends(cfg, log)
	defer b.Close()

	g, _, err := loadConfiguredGallery(ctx, b)
	if err != nil {
		return err
	}

	vecs, err := encoder.NewClient(cfg.Encoder, log).ExtractFeatures(ctx, image)
	if err != nil {
		return err
	}
	neighbors, err := g.Nearest(vecs[0], k)
	if err != nil {
		return err
	}

	fmt.Printf("%-4s %-30s %-12s %s\n", "#", "NAME", "ROLL NO", "SIMILARITY")
	for i, n := range neighbors {
		fmt.Printf("%-4d %-30s %-12s %.4f\n", i+1, n.Name, n.RollNo, n.Similarity)
	}
	return nil
}
