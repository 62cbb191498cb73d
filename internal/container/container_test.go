package container

import (
	"testing"

	"github.com/Iron-Ham/cibox/internal/errors"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUndefined, "undefined"},
		{StateStopped, "stopped"},
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateStopping, "stopping"},
		{StateDestroyed, "destroyed"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("State.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseSpec(t *testing.T) {
	tests := []struct {
		name    string
		cname   string
		data    string
		want    Spec
		wantErr bool
	}{
		{
			name:  "default triple",
			cname: "test",
			data:  "ubuntu,xenial,amd64",
			want:  Spec{Name: "test", Distribution: "ubuntu", Release: "xenial", Architecture: "amd64"},
		},
		{
			name:  "spaces trimmed",
			cname: "ci-1",
			data:  "debian, bookworm ,arm64",
			want:  Spec{Name: "ci-1", Distribution: "debian", Release: "bookworm", Architecture: "arm64"},
		},
		{name: "two fields", cname: "test", data: "ubuntu,xenial", wantErr: true},
		{name: "empty field", cname: "test", data: "ubuntu,,amd64", wantErr: true},
		{name: "bad name", cname: "-test", data: "ubuntu,xenial,amd64", wantErr: true},
		{name: "name with slash", cname: "a/b", data: "ubuntu,xenial,amd64", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSpec(tt.cname, tt.data)
			if tt.wantErr {
				if !errors.Is(err, errors.ErrInvalidSpec) {
					t.Fatalf("ParseSpec() err = %v, want ErrInvalidSpec", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSpec() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseSpec() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSpec_String(t *testing.T) {
	s := Spec{Name: "test", Distribution: "ubuntu", Release: "xenial", Architecture: "amd64"}
	if got := s.String(); got != "ubuntu,xenial,amd64" {
		t.Errorf("Spec.String() = %q", got)
	}
}
