package ftpclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func sample() []Entry {
	return []Entry{
		{Name: "zeta.txt"},
		{Name: ".hidden"},
		{Name: "Alpha", Kind: KindDirectory},
		{Name: "beta.TXT"},
		{Name: ".config", Kind: KindDirectory},
		{Name: "gamma", Kind: KindDirectory},
	}
}

func TestFilterHidden(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"zeta.txt", "Alpha", "beta.TXT", "gamma"}, names(FilterHidden(sample())))
	assert.Empty(t, FilterHidden(nil))
}

func TestSortEntries(t *testing.T) {
	t.Parallel()

	entries := sample()
	SortEntries(entries, false)
	assert.Equal(t, []string{".config", ".hidden", "Alpha", "beta.TXT", "gamma", "zeta.txt"}, names(entries))

	entries = sample()
	SortEntries(entries, true)
	assert.Equal(t, []string{".config", "Alpha", "gamma", ".hidden", "beta.TXT", "zeta.txt"}, names(entries))
}

func TestSearch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		query string
		opts  SearchOptions
		want  []string
	}{
		{"case insensitive files only", "txt", SearchOptions{}, []string{"zeta.txt", "beta.TXT"}},
		{"case sensitive", "TXT", SearchOptions{CaseSensitive: true}, []string{"beta.TXT"}},
		{"directories included", "a", SearchOptions{IncludeDirs: true}, []string{"zeta.txt", "Alpha", "beta.TXT", "gamma"}},
		{"empty query", "", SearchOptions{}, []string{"zeta.txt", ".hidden", "beta.TXT"}},
		{"no match", "nope", SearchOptions{IncludeDirs: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Search(sample(), tt.query, tt.opts)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, names(got))
		})
	}
}
