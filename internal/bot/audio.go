package bot

import (
	"fmt"
	"strings"
)

// SupportedFormats is the audio allow-list, matched as a case-insensitive
// filename suffix.
var SupportedFormats = []string{
	".mp3",
	".wav",
	".ogg",
	".m4a",
	".flac",
	".aac",
	".aiff",
	".wma",
}

// IsAudioFile reports whether name ends with a supported audio suffix.
func IsAudioFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range SupportedFormats {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// FormatSizeMB renders bytes as megabytes with two decimals ("2.00").
func FormatSizeMB(size int64) string {
	return fmt.Sprintf("%.2f", float64(size)/(1024*1024))
}
