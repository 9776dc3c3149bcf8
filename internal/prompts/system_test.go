package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSystemPrompt(t *testing.T) {
	p := SystemPrompt("Octo Cat")
	if !strings.HasPrefix(p, "You are Octo Cat's portfolio assistant.") {
		t.Errorf("prompt starts %q", p[:60])
	}
	if strings.Contains(p, "%!") {
		t.Error("prompt has a formatting error")
	}
	if !strings.Contains(SystemPrompt("  "), "the portfolio owner's") {
		t.Error("blank subject should use the generic name")
	}
}

func TestLoadSystemPrompt(t *testing.T) {
	dir := t.TempDir()
	custom := filepath.Join(dir, "prompt.txt")
	os.WriteFile(custom, []byte("\nBe brief.\n"), 0o644)
	empty := filepath.Join(dir, "empty.txt")
	os.WriteFile(empty, []byte("  \n"), 0o644)

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"default", "", SystemPrompt("Octo"), false},
		{"file", custom, "Be brief.", false},
		{"empty file", empty, "", true},
		{"missing", filepath.Join(dir, "nope.txt"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadSystemPrompt(tt.path, "Octo")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
