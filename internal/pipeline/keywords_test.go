package pipeline

import (
	"reflect"
	"strings"
	"testing"
)

func TestNormalizeKeywords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"numbered comma list", "1. calm, 2. ocean, 3. breezy, 4. golden-hour", []string{"calm", "ocean", "breezy", "golden-hour"}},
		{"empty", "", []string{}},
		{"whitespace only", "  \n\t ", []string{}},
		{"whitespace split when no commas", "calm  ocean\nbreezy", []string{"calm", "ocean", "breezy"}},
		{"commas keep multi-word tokens", "warm light, quiet street", []string{"warm light", "quiet street"}},
		{"drops empty tokens", "calm,, ,ocean,", []string{"calm", "ocean"}},
		{"multi-digit prefix", "12. dusk, 3.rain", []string{"dusk", "rain"}},
		{"bare number token dropped", "1., calm", []string{"calm"}},
		{"digits without dot kept", "1980s, neon", []string{"1980s", "neon"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := NormalizeKeywords(tc.raw)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("NormalizeKeywords(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestNormalizeKeywords_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"calm, ocean, breezy, golden-hour",
		"1. calm, 2. ocean",
		"night city rain",
		"a",
	}
	for _, raw := range inputs {
		once := NormalizeKeywords(raw)
		twice := NormalizeKeywords(strings.Join(once, ", "))
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("normalising %q twice: %q then %q", raw, once, twice)
		}
	}
}

func TestShortKeywords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   []string
		want []string
	}{
		{nil, []string{}},
		{[]string{"a"}, []string{"a"}},
		{[]string{"a", "b"}, []string{"a", "b"}},
		{[]string{"a", "b", "c"}, []string{"a", "b", "c"}},
		{[]string{"a", "b", "c", "d", "e"}, []string{"a", "b", "c"}},
	}
	for _, tc := range tests {
		got := ShortKeywords(tc.in)
		if len(got) > 3 {
			t.Errorf("ShortKeywords(%q) returned %d items", tc.in, len(got))
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ShortKeywords(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestShortKeywords_DoesNotAlias(t *testing.T) {
	t.Parallel()

	in := []string{"calm", "ocean", "breezy", "dusk"}
	out := ShortKeywords(in)
	out[0] = "changed"
	if in[0] != "calm" {
		t.Errorf("ShortKeywords aliased its input: %q", in)
	}
}
