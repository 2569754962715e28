package catedral

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	_ "embed"
)

type translation map[string]string

var translations map[string]translation

//go:embed _translations.json
var keys []byte

var defaultLang atomic.Value

func init() {
	defaultLang.Store("pt-BR")
}

// SetDefaultLanguage sets the language used when a key has no text in the requested one.
func SetDefaultLanguage(lang string) {
	if lang != "" {
		defaultLang.Store(lang)
	}
}

func DefaultLanguage() string {
	return defaultLang.Load().(string)
}

func TranslationKeyExists(line string) bool {
	_, ok := translations[line]
	return ok
}

func GetText(lang, line string, args ...any) string {
	if _, ok := translations[line]; !ok {
		slog.WarnContext(context.TODO(), "Invalid translation key", slog.Any("key", line))
		return line
	}
	return fmt.Sprintf(textFor(line, lang), args...)
}

func MaybeGetText(lang, line string, args ...any) string {
	if _, ok := translations[line]; !ok {
		return line
	}
	return fmt.Sprintf(textFor(line, lang), args...)
}

func textFor(line, lang string) string {
	if s, ok := translations[line][lang]; ok {
		return s
	}
	if s, ok := translations[line][DefaultLanguage()]; ok {
		return s
	}
	return translations[line]["en"]
}

// ErrorMessage renders err for a donor. Validation and rejection errors get their localized
// text (a known provider status detail wins over the generic rejection). Anything without a
// translation key falls back to a generic message so internal details never leak.
func ErrorMessage(lang string, err error) string {
	if err == nil {
		return ""
	}
	key := errorKey(err)
	switch ErrorKindOf(err) {
	case KindGatewayRejected:
		if detail := ErrorDetail(err); detail != "" && TranslationKeyExists(key+"."+detail) {
			return MaybeGetText(lang, key+"."+detail)
		}
		if err.Error() != "" {
			return err.Error()
		}
	case KindValidation, KindNotFound:
		if key != "" && TranslationKeyExists(key) {
			return MaybeGetText(lang, key)
		}
		return err.Error()
	}
	if key != "" && TranslationKeyExists(key) {
		return MaybeGetText(lang, key)
	}
	if code := ErrorCode(err); code >= 400 && code < 500 {
		return err.Error()
	}
	return MaybeGetText(lang, "error.generic")
}

func recurse(prefix string, val map[string]any) {
	for name, val := range val {
		if str, ok := val.(string); ok {
			if _, ok = translations[prefix]; !ok {
				translations[prefix] = make(translation)
			}
			translations[prefix][name] = str
		} else if deeper, ok := val.(map[string]any); ok {
			recurse(prefix+"."+name, deeper)
		} else {
			slog.ErrorContext(context.Background(), "Invalid translation JSON type")
			os.Exit(1)
		}
	}
}

func init() {
	translations = make(map[string]translation)
	var elems = make(map[string]map[string]any)
	err := json.Unmarshal(keys, &elems)
	if err != nil {
		slog.ErrorContext(context.Background(), "Error unmarshaling translation keys", slog.Any("err", err))
		os.Exit(1)
	}
	for name, children := range elems {
		recurse(name, children)
	}
}
