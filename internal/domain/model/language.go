package model

import (
	"fmt"
	"strings"

	"tle_zone_judge/internal/common"
)

// Language is the closed set of runtimes the judge accepts.
type Language string

const (
	LanguageCpp        Language = "cpp"
	LanguageJava       Language = "java"
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
)

var Languages = []Language{LanguageCpp, LanguageJava, LanguagePython, LanguageJavaScript}

var languageAliases = map[string]Language{
	"cpp":        LanguageCpp,
	"c++":        LanguageCpp,
	"java":       LanguageJava,
	"python":     LanguagePython,
	"python3":    LanguagePython,
	"py":         LanguagePython,
	"javascript": LanguageJavaScript,
	"js":         LanguageJavaScript,
	"node":       LanguageJavaScript,
}

// ParseLanguage resolves a client supplied tag. Unknown tags yield
// common.ErrUnsupportedLanguage.
func ParseLanguage(tag string) (Language, error) {
	if l, ok := languageAliases[strings.ToLower(strings.TrimSpace(tag))]; ok {
		return l, nil
	}
	return "", fmt.Errorf("%q: %w", tag, common.ErrUnsupportedLanguage)
}

func (l Language) Valid() bool {
	for _, known := range Languages {
		if l == known {
			return true
		}
	}
	return false
}
