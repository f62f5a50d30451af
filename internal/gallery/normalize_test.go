package gallery

import "testing"

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jiří", "Jiri"},
		{"Nováková", "Novakova"},
		{"plain", "plain"},
		{"", ""},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := RemoveDiacritics(tc.input); got != tc.expected {
				t.Errorf("RemoveDiacritics(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"diacritics and case", "Jan Novák", "jan novak"},
		{"dashes become spaces", "jan-novak", "jan novak"},
		{"collapsed whitespace", "  Jan   Novak  ", "jan novak"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeName(tc.input); got != tc.expected {
				t.Errorf("NormalizeName(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}
