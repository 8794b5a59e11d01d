package util_test

import (
	"errors"
	"testing"

	"github.com/Ryuzii/FerraEura/internal/util"
)

func TestGetOne(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]string
		want  string
		err   error
	}{
		{
			name:  "single attachment",
			input: map[string]string{"0": "https://cdn.example.com/song.mp3"},
			want:  "https://cdn.example.com/song.mp3",
		},
		{
			name:  "two attachments",
			input: map[string]string{"0": "a.mp3", "1": "b.mp3"},
			err:   util.ErrMultipleElements,
		},
		{
			name:  "nothing attached",
			input: map[string]string{},
			err:   util.ErrNoElement,
		},
		{
			name: "nil map",
			err:  util.ErrNoElement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := util.GetOne(tt.input)
			if !errors.Is(err, tt.err) {
				t.Fatalf("GetOne() error = %v; want %v", err, tt.err)
			}
			if got != tt.want {
				t.Errorf("GetOne() = %q; want %q", got, tt.want)
			}
		})
	}
}
