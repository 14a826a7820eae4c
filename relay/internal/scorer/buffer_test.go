package scorer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimitedBuffer(t *testing.T) {
	tests := []struct {
		name          string
		limit         int
		writes        []string
		want          string
		wantTruncated bool
	}{
		{name: "under limit", limit: 10, writes: []string{"abc", "def"}, want: "abcdef"},
		{name: "exactly at limit", limit: 6, writes: []string{"abc", "def"}, want: "abcdef"},
		{name: "split write", limit: 4, writes: []string{"abc", "def"}, want: "abcd", wantTruncated: true},
		{name: "writes after full", limit: 3, writes: []string{"abc", "d", "e"}, want: "abc", wantTruncated: true},
		{name: "unlimited", limit: 0, writes: []string{strings.Repeat("x", 4096)}, want: strings.Repeat("x", 4096)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &limitedBuffer{limit: tt.limit}
			for _, w := range tt.writes {
				n, err := b.Write([]byte(w))
				assert.NoError(t, err)
				assert.Equal(t, len(w), n, "writer must report full length so the pipe keeps draining")
			}
			assert.Equal(t, tt.want, string(b.Bytes()))
			assert.Equal(t, tt.wantTruncated, b.truncated)
		})
	}
}
