package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var batchFile string

// readBatchFile returns the non-empty, non-comment lines of filename
func readBatchFile(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var inputs []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		inputs = append(inputs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no videos found in %s", filename)
	}
	return inputs, nil
}

// runBatch downloads every video listed in filename, one after another
func runBatch(cmd *cobra.Command, filename string) error {
	inputs, err := readBatchFile(filename)
	if err != nil {
		return err
	}

	fmt.Printf("Found %d video(s) to download\n\n", len(inputs))

	var failedInputs []string
	for i, input := range inputs {
		if err := cmd.Context().Err(); err != nil {
			return err
		}

		fmt.Printf("(%d/%d) %s\n", i+1, len(inputs), truncate(input, 60))
		if err := runDownload(cmd, input); err != nil {
			failColor.Fprintf(os.Stderr, "  Error: %v\n", err)
			failedInputs = append(failedInputs, input)
		}
		fmt.Println()
	}

	fmt.Println("----------------------------------------")
	fmt.Printf("Completed: %d/%d", len(inputs)-len(failedInputs), len(inputs))
	if len(failedInputs) > 0 {
		fmt.Printf(", Failed: %d", len(failedInputs))
	}
	fmt.Println()

	if len(failedInputs) > 0 {
		fmt.Println("\nFailed:")
		for _, input := range failedInputs {
			fmt.Printf("  - %s\n", input)
		}
		return fmt.Errorf("%d of %d videos failed", len(failedInputs), len(inputs))
	}
	return nil
}

// truncate shortens s for display
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
