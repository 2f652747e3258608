package metric

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"calls":       "calls",
		"API Calls":   "api-calls",
		"api_calls":   "api-calls",
		" Storage GB": "storage-gb",
		"   ":         "",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
