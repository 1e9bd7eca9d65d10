package pipeline

import (
	"strings"
)

const maxFilenameRunes = 100

var filenameReplacer = strings.NewReplacer(
	`\`, "", "/", "", "*", "", "?", "", ":", "",
	`"`, "", "<", "", ">", "", "|", "",
	"\n", "", "\r", "", "\t", "",
)

// SanitizeFilename makes a title safe to use as a file or directory name
func SanitizeFilename(name string) string {
	name = filenameReplacer.Replace(name)

	if runes := []rune(name); len(runes) > maxFilenameRunes {
		name = string(runes[:maxFilenameRunes-3]) + "..."
	}

	name = strings.TrimSpace(name)
	// "." and ".." would resolve outside the download root
	if strings.Trim(name, ".") == "" {
		return "untitled"
	}
	return name
}
