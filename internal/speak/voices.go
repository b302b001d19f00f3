package speak

import "strings"

// relatedLanguages maps a primary language subtag to phonetically or
// linguistically closer substitutes, tried in order when the device has no
// voice for the requested language. Device voice coverage for Indian
// languages in particular is poor; a Hindi voice reading Tamil text is
// closer than an English one.
var relatedLanguages = map[string][]string{
	"ta": {"hi", "te", "kn", "ml"},
	"te": {"hi", "ta", "kn"},
	"kn": {"hi", "te", "ta"},
	"ml": {"hi", "ta"},
	"mr": {"hi"},
	"gu": {"hi"},
	"pa": {"hi"},
	"bn": {"hi"},
	"ur": {"hi"},
	"nb": {"no", "da", "sv"},
	"nn": {"no", "nb", "da"},
	"ca": {"es"},
	"gl": {"es", "pt"},
}

// SelectVoice picks the best candidate from voices for the given BCP-47-like
// language code. Preference order: exact code match, primary-subtag match,
// related-language substitution, then any English voice. Within a candidate
// set, a voice whose name carries a male indicator wins (product preference);
// otherwise the first candidate in list order.
//
// The second return value is false only when no candidate matched at any
// tier. Callers should then leave the voice unset and let the engine use its
// default — absence of a matching voice is not an error.
func SelectVoice(languageCode string, voices []Voice) (Voice, bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}

	if v, ok := pickPreferred(voices, func(v Voice) bool {
		return strings.EqualFold(v.LanguageCode, languageCode)
	}); ok {
		return v, true
	}

	primary := primarySubtag(languageCode)
	if v, ok := pickPreferred(voices, func(v Voice) bool {
		return primarySubtag(v.LanguageCode) == primary
	}); ok {
		return v, true
	}

	for _, sub := range relatedLanguages[primary] {
		if v, ok := pickPreferred(voices, func(v Voice) bool {
			return primarySubtag(v.LanguageCode) == sub
		}); ok {
			return v, true
		}
	}

	if v, ok := pickPreferred(voices, func(v Voice) bool {
		return primarySubtag(v.LanguageCode) == "en"
	}); ok {
		return v, true
	}

	return Voice{}, false
}

// pickPreferred filters voices by match and applies the male-name tie-break.
func pickPreferred(voices []Voice, match func(Voice) bool) (Voice, bool) {
	var candidates []Voice
	for _, v := range voices {
		if match(v) {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return Voice{}, false
	}
	for _, v := range candidates {
		if hasMaleIndicator(v.Name) {
			return v, true
		}
	}
	return candidates[0], true
}

// hasMaleIndicator reports whether a voice name signals a male voice.
// "female" contains "male" as a substring, so that case is excluded first.
func hasMaleIndicator(name string) bool {
	n := strings.ToLower(name)
	if strings.Contains(n, "female") {
		return false
	}
	return strings.Contains(n, "male")
}

// primarySubtag returns the lowercase primary language subtag of a
// BCP-47-like code ("ta-IN" → "ta"). Underscore separators are tolerated.
func primarySubtag(code string) string {
	code = strings.ToLower(code)
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		return code[:i]
	}
	return code
}
