package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSampler struct {
	pages []string
}

func (f *fakeSampler) PageCount() int { return len(f.pages) }

func (f *fakeSampler) PageText(num int) (string, error) {
	return f.pages[num-1], nil
}

func TestClassify(t *testing.T) {
	dense := strings.Repeat("lorem ipsum ", 20)
	tests := []struct {
		name  string
		pages []string
		want  string
	}{
		{
			name:  "all dense pages are digital",
			pages: []string{dense, dense, dense, "", ""},
			want:  ClassDigital,
		},
		{
			name:  "all empty pages are scanned",
			pages: []string{"", "", ""},
			want:  ClassScanned,
		},
		{
			name:  "majority low density is scanned",
			pages: []string{"", "short", dense},
			want:  ClassScanned,
		},
		{
			name:  "majority dense is digital",
			pages: []string{dense, dense, ""},
			want:  ClassDigital,
		},
		{
			name:  "single dense page is digital",
			pages: []string{dense},
			want:  ClassDigital,
		},
		{
			name:  "single sparse page is scanned",
			pages: []string{"x"},
			want:  ClassScanned,
		},
		{
			name:  "one of two sparse pages is digital, no majority",
			pages: []string{dense, ""},
			want:  ClassDigital,
		},
		{
			name:  "zero pages default to digital",
			pages: nil,
			want:  ClassDigital,
		},
		{
			// 60 Hangul runes clear the threshold even though each one
			// is three UTF-8 bytes.
			name:  "density counts characters not bytes",
			pages: []string{strings.Repeat("회로", 30)},
			want:  ClassDigital,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(&fakeSampler{pages: tt.pages})
			require.NoError(t, err)
			require.Equal(t, tt.want, got)

			// Deterministic: same density profile, same answer.
			again, err := Classify(&fakeSampler{pages: tt.pages})
			require.NoError(t, err)
			require.Equal(t, got, again)
		})
	}
}
