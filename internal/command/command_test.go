package command

import (
	"errors"
	"fmt"
	"os/exec"
	"testing"
)

func TestExitCode(t *testing.T) {
	notFound := errors.New("executable file not found")

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  error
	}{
		{"nil error", nil, 0, nil},
		{"exit error", &ExitError{Code: 3}, 3, nil},
		{"wrapped exit error", fmt.Errorf("lxc-attach: %w", &ExitError{Code: 100}), 100, nil},
		{"plain error", notFound, -1, notFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := ExitCode(tt.err)
			if code != tt.wantCode {
				t.Errorf("ExitCode() code = %d, want %d", code, tt.wantCode)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ExitCode() err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRealRunner_ExitStatus(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	r := New()
	code, err := ExitCode(r.Run(exec.Command("sh", "-c", "exit 7")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != 7 {
		t.Errorf("code = %d, want 7", code)
	}
}

func TestDescribe(t *testing.T) {
	got := Describe([]string{"apt-get", "install", "-qy", "git"})
	if got != "apt-get install -qy git" {
		t.Errorf("Describe() = %q", got)
	}
}
