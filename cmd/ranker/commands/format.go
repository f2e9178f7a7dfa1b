package commands

import (
	"fmt"
	"strings"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// every command prints through these helpers
// ═══════════════════════════════════════════════════════════

// JobMetadata holds job execution metadata
type JobMetadata struct {
	JobID     int64
	JobType   string
	Tag       string
	Timestamp string
}

// PrintJobHeader prints a formatted job header
func PrintJobHeader(meta JobMetadata) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", meta.JobType)
	PrintSeparator()
	fmt.Printf("  Run ID    : #%d\n", meta.JobID)
	fmt.Printf("  Mode      : %s\n", meta.Tag)
	PrintSeparator()
	fmt.Printf("[%s] Run triggered at %s\n", meta.Tag, meta.Timestamp)
}

// PrintJobCompletion prints job completion message
func PrintJobCompletion(jobID int64, duration float64) {
	fmt.Println()
	fmt.Printf("✅ Run #%d completed in %.2fs (100%%)\n", jobID, duration)
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println()
	fmt.Printf("⚠️  %s\n", message)
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	// Separator line
	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}
