package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/logging"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Recognize a student from an image and record attendance",
	Long: `Run one image through the same pipeline the web server uses: detect,
match against the gallery, decide, and mark attendance for the session.

Examples:
  rollcall recognize probe.jpg --department CS --year TE --division A --time-slot "10:00 - 11:00"`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	addSessionFlags(recognizeCmd)
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	class, slot := sessionFromFlags(cmd)

	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	ctx := context.Background()
	cfg := config.Load()
	log := logging.New(cfg.Log)

	b := newBackends(cfg, log)
	defer b.Close()

	svc, err := newService(ctx, b)
	if err != nil {
		return err
	}
	if _, err := svc.ReloadGallery(ctx); err != nil {
		return err
	}

	res := svc.Recognize(ctx, attendance.Request{Image: image, Class: class, TimeSlot: slot})
	if jsonOutput {
		return outputJSON(recognizeOutput(res))
	}

	fmt.Printf("Session:    %s\n", res.Session.Encode())
	if !res.Success {
		fmt.Printf("Failed:     %s (%s)\n", res.Error, res.State)
		return nil
	}
	fmt.Printf("Student:    %s", res.Name)
	if res.RollNo != "" {
		fmt.Printf(" (roll %s)", res.RollNo)
	}
	fmt.Println()
	fmt.Printf("Decision:   %s, confidence %.2f, score %.2f (%s)\n", res.Status(), res.Confidence, res.Score, res.Scorer)
	switch {
	case res.Marked:
		fmt.Println("Attendance: marked")
	case res.AlreadyMarked:
		fmt.Println("Attendance: already marked")
	default:
		fmt.Println("Attendance: not marked")
	}
	for _, w := range res.Warnings {
		fmt.Printf("Warning:    %s\n", w)
	}
	return nil
}

func recognizeOutput(res attendance.Result) map[string]any {
	return map[string]any{
		"success":           res.Success,
		"name":              res.Name,
		"roll_no":           res.RollNo,
		"confidence":        res.Confidence,
		"similarity":        res.Similarity(),
		"score":             res.Score,
		"outcome":           res.Outcome,
		"status":            res.Status(),
		"attendance_marked": res.Marked,
		"already_marked":    res.AlreadyMarked,
		"error":             res.Error,
		"state":             res.State,
		"request_id":        res.RequestID,
		"warnings":          res.Warnings,
		"session":           res.Session,
	}
}
