package speak

import "testing"

func voiceCatalogue() []Voice {
	return []Voice{
		{ID: "en-gb-f", Name: "Google UK English Female", LanguageCode: "en-GB"},
		{ID: "en-us-m", Name: "Microsoft David", LanguageCode: "en-US"},
		{ID: "hi-f", Name: "Google हिन्दी", LanguageCode: "hi-IN"},
		{ID: "hi-m", Name: "Microsoft Hemant Male", LanguageCode: "hi-IN"},
		{ID: "ta-f", Name: "Google தமிழ்", LanguageCode: "ta-IN"},
		{ID: "fr-f", Name: "Amélie", LanguageCode: "fr-CA"},
		{ID: "fr-fr", Name: "Thomas Male", LanguageCode: "fr-FR"},
	}
}

func TestSelectVoice(t *testing.T) {
	tests := []struct {
		name   string
		lang   string
		voices []Voice
		wantID string
		wantOK bool
	}{
		{
			name:   "exact match",
			lang:   "ta-IN",
			voices: voiceCatalogue(),
			wantID: "ta-f",
			wantOK: true,
		},
		{
			name:   "prefix match when region differs",
			lang:   "fr-BE",
			voices: voiceCatalogue(),
			wantID: "fr-fr", // male indicator wins over list order
			wantOK: true,
		},
		{
			name: "related language substitution tamil to hindi",
			lang: "ta-IN",
			voices: []Voice{
				{ID: "en-f", Name: "Samantha", LanguageCode: "en-US"},
				{ID: "hi-f", Name: "Google हिन्दी", LanguageCode: "hi-IN"},
			},
			wantID: "hi-f",
			wantOK: true,
		},
		{
			name: "english fallback when nothing related exists",
			lang: "ta-IN",
			voices: []Voice{
				{ID: "de-f", Name: "Anna", LanguageCode: "de-DE"},
				{ID: "en-f", Name: "Samantha", LanguageCode: "en-US"},
			},
			wantID: "en-f",
			wantOK: true,
		},
		{
			name: "male preference within exact matches",
			lang: "hi-IN",
			voices: []Voice{
				{ID: "hi-f", Name: "Google हिन्दी Female", LanguageCode: "hi-IN"},
				{ID: "hi-m", Name: "Hemant Male", LanguageCode: "hi-IN"},
			},
			wantID: "hi-m",
			wantOK: true,
		},
		{
			name: "female voice is not mistaken for male",
			lang: "en-GB",
			voices: []Voice{
				{ID: "en-gb-f", Name: "Google UK English Female", LanguageCode: "en-GB"},
			},
			wantID: "en-gb-f",
			wantOK: true,
		},
		{
			name: "no candidate at any tier",
			lang: "ja-JP",
			voices: []Voice{
				{ID: "de-f", Name: "Anna", LanguageCode: "de-DE"},
			},
			wantOK: false,
		},
		{
			name:   "empty voice list",
			lang:   "en-US",
			voices: nil,
			wantOK: false,
		},
		{
			name: "underscore separator tolerated",
			lang: "ta_IN",
			voices: []Voice{
				{ID: "ta-f", Name: "Google தமிழ்", LanguageCode: "ta-IN"},
			},
			wantID: "ta-f",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := SelectVoice(tt.lang, tt.voices)
			if ok != tt.wantOK {
				t.Fatalf("SelectVoice() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && v.ID != tt.wantID {
				t.Fatalf("SelectVoice() = %q, want %q", v.ID, tt.wantID)
			}
		})
	}
}

func TestSelectVoice_PrefixMatchAlwaysNonNil(t *testing.T) {
	// Whenever at least one voice shares the primary subtag, the heuristic
	// must return a voice.
	langs := []string{"en-US", "en-GB", "hi-IN", "ta-IN", "fr-FR", "fr-CA"}
	for _, lang := range langs {
		if _, ok := SelectVoice(lang, voiceCatalogue()); !ok {
			t.Errorf("SelectVoice(%q) returned no voice despite prefix candidates", lang)
		}
	}
}

func TestHasMaleIndicator(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Microsoft Ravi Male", true},
		{"male voice 2", true},
		{"Google UK English Female", false},
		{"Samantha", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := hasMaleIndicator(tt.name); got != tt.want {
			t.Errorf("hasMaleIndicator(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
