package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/gallery"
)

// mustGetBool gets a bool flag value or panics if the flag doesn't exist.
// This is appropriate for flags defined in init() - errors indicate programming bugs.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetInt gets an int flag value or panics if the flag doesn't exist.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// addSessionFlags registers the class session flags shared by several commands.
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String("department", "", "Department of the class session")
	cmd.Flags().String("year", "", "Year of the class session")
	cmd.Flags().String("division", "", "Division of the class session")
	cmd.Flags().String("time-slot", "", "Time slot of the class session, e.g. \"10:00 - 11:00\"")
}

// sessionFromFlags returns the class tag (nil when no class flag is set) and time slot.
func sessionFromFlags(cmd *cobra.Command) (*gallery.ClassTag, string) {
	tag := gallery.ClassTag{
		Department: mustGetString(cmd, "department"),
		Year:       mustGetString(cmd, "year"),
		Division:   mustGetString(cmd, "division"),
	}
	slot := mustGetString(cmd, "time-slot")
	if tag.IsZero() {
		return nil, slot
	}
	return &tag, slot
}
