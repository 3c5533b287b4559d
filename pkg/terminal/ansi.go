package terminal

const (
	ansiRed       = "\x1b[31m"
	ansiLightBlue = "\x1b[94m"
	ansiDefault   = "\x1b[39;49m"
)

// FormatError renders an error message the way sessions show it on the display.
func FormatError(msg string) string {
	return ansiRed + "Error: " + msg + ansiDefault
}
