package render

import "strings"

const (
	// ColorChar is the reserved escape written in templates.
	ColorChar = '&'
	// FormatPrefix is the platform's formatting prefix it becomes.
	FormatPrefix = '§'

	colorCodes = "0123456789AaBbCcDdEeFfKkLlMmNnOoRrXx"
)

// TranslateColors rewrites every ColorChar followed by a valid code character
// into FormatPrefix plus the lower-cased code. Other occurrences are kept.
func TranslateColors(s string) string {
	if !strings.ContainsRune(s, ColorChar) {
		return s
	}
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(runes); i++ {
		if runes[i] == ColorChar && i+1 < len(runes) && strings.ContainsRune(colorCodes, runes[i+1]) {
			b.WriteRune(FormatPrefix)
			b.WriteString(strings.ToLower(string(runes[i+1])))
			i++
			continue
		}
		b.WriteRune(runes[i])
	}
	return b.String()
}
