package normalize

import (
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// UnknownLanguage is used when neither detection nor the source declare a language.
const UnknownLanguage = "unknown"

// Detector guesses the language of a text and returns an ISO 639-1 code.
type Detector interface {
	Detect(text string) (code string, ok bool)
}

// WhatlangDetector detects languages with whatlanggo.
type WhatlangDetector struct{}

// Detect returns a code only when whatlanggo considers the result reliable.
func (WhatlangDetector) Detect(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return "", false
	}
	code := info.Lang.Iso6391()
	return code, code != ""
}

// LanguageName maps a language code to its lowercase English name
// ("en" -> "english"). Values that are not codes are lowercased as is.
func LanguageName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	parts := strings.FieldsFunc(code, func(r rune) bool { return r == '-' || r == '_' })
	if len(parts) == 0 || len(parts[0]) < 2 || len(parts[0]) > 3 {
		return strings.ToLower(code)
	}
	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToLower(code)
	}
	base, _ := tag.Base()
	name := display.English.Languages().Name(language.Make(base.String()))
	if name == "" {
		return strings.ToLower(code)
	}
	return strings.ToLower(name)
}

func detectLanguage(d Detector, text, fallback string) string {
	if d != nil {
		if code, ok := d.Detect(text); ok {
			return LanguageName(code)
		}
	}
	if fallback = LanguageName(fallback); fallback != "" {
		return fallback
	}
	return UnknownLanguage
}
