package password

import (
	"strings"
	"testing"
)

func TestGenerateContainsEveryClass(t *testing.T) {
	for i := 0; i < 200; i++ {
		pw, err := Generate(20)
		if err != nil {
			t.Fatalf("Generate error: %v", err)
		}
		if len(pw) != 20 {
			t.Fatalf("unexpected length %d", len(pw))
		}
		for _, class := range []string{lowerChars, upperChars, digitChars, symbolChars} {
			if !strings.ContainsAny(pw, class) {
				t.Fatalf("password %q is missing a character from %q", pw, class)
			}
		}
	}
}

func TestGenerateUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		pw, err := Generate(MinGeneratedLength)
		if err != nil {
			t.Fatalf("Generate error: %v", err)
		}
		if _, dup := seen[pw]; dup {
			t.Fatalf("duplicate generated password %q", pw)
		}
		seen[pw] = struct{}{}
	}
}

func TestGenerateRejectsShortLength(t *testing.T) {
	if _, err := Generate(MinGeneratedLength - 1); err == nil {
		t.Fatal("expected short length to be rejected")
	}
}
