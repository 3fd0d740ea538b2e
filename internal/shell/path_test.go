package shell

import "testing"

func TestTranslatePath(t *testing.T) {
	tests := []struct {
		layer Layer
		in    string
		want  string
	}{
		{MSYS, `D:\out`, "/d/out"},
		{Cygwin, `D:\out`, "/cygdrive/d/out"},
		{Native, `D:\out`, `D:\out`},
		{MSYS, `C:\Users\build\icu\output`, "/c/Users/build/icu/output"},
		{Cygwin, `c:/work/output/`, "/cygdrive/c/work/output"},
		{MSYS, `E:\`, "/e"},
		{Cygwin, `E:`, "/cygdrive/e"},
		{MSYS, `D:out`, "/d/out"},
		{MSYS, "relative/dir", "relative/dir"},
		{Cygwin, `relative\dir`, "relative/dir"},
	}
	for _, tt := range tests {
		t.Run(string(tt.layer)+" "+tt.in, func(t *testing.T) {
			got := TranslatePath(tt.layer, tt.in)
			if got != tt.want {
				t.Fatalf("TranslatePath(%q, %q) = %q, want %q", tt.layer, tt.in, got, tt.want)
			}
			if again := TranslatePath(tt.layer, got); again != got {
				t.Fatalf("translation is not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestParseLayer(t *testing.T) {
	for _, s := range []string{"msys", "cygwin"} {
		if l, err := ParseLayer(s); err != nil || string(l) != s {
			t.Errorf("ParseLayer(%q) = %q, %v", s, l, err)
		}
	}
	if _, err := ParseLayer("wsl"); err == nil {
		t.Error("ParseLayer(wsl) should fail")
	}
}
