package i18n

import (
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

const DefaultLocale = "en"

// Order matters: the first entry is the fallback.
var supported = []language.Tag{language.English, language.German}

var matcher = language.NewMatcher(supported)

// LocaleFromRequest picks the email locale from Accept-Language.
func LocaleFromRequest(r *http.Request) string {
	if r == nil {
		return DefaultLocale
	}
	return NormalizeLocale(r.Header.Get("Accept-Language"))
}

// NormalizeLocale maps an Accept-Language value or a bare tag to one of the
// supported base languages.
func NormalizeLocale(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return DefaultLocale
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return DefaultLocale
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return DefaultLocale
	}
	base, _ := supported[idx].Base()
	return base.String()
}
