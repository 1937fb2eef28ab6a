package dictionary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		coding string
		want   map[string]string
		labels []string
	}{
		{
			name:   "yes no",
			coding: "1, No | 2, Yes",
			want:   map[string]string{"No": "1", "Yes": "2"},
			labels: []string{"No", "Yes"},
		},
		{
			name:   "label with comma keeps text after first comma",
			coding: "1, No | 99, Don't know, or unsure",
			want:   map[string]string{"No": "1", "Don't know, or unsure": "99"},
			labels: []string{"No", "Don't know, or unsure"},
		},
		{
			name:   "irregular whitespace",
			coding: "1,No|2 ,  Yes  ",
			want:   map[string]string{"No": "1", "Yes": "2"},
			labels: []string{"No", "Yes"},
		},
		{
			name:   "single entry",
			coding: "0, Unchecked",
			want:   map[string]string{"Unchecked": "0"},
			labels: []string{"Unchecked"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse(tt.coding)
			require.NoError(t, err)
			require.NotNil(t, s)
			assert.Equal(t, tt.want, s.LabelToCode())
			assert.Equal(t, tt.labels, s.Labels())
			assert.Equal(t, len(tt.want), s.Len())
		})
	}
}

func TestParseBidirectional(t *testing.T) {
	s := MustParse("1, No | 2, Yes")

	code, ok := s.Code("Yes")
	require.True(t, ok)
	assert.Equal(t, "2", code)

	label, ok := s.Label("1")
	require.True(t, ok)
	assert.Equal(t, "No", label)

	_, ok = s.Code("Maybe")
	assert.False(t, ok)
}

func TestParseEmpty(t *testing.T) {
	for _, coding := range []string{"", "   "} {
		s, err := Parse(coding)
		assert.NoError(t, err)
		assert.Nil(t, s)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		coding  string
		wantErr error
	}{
		{"entry without comma", "1, No | Yes", ErrMalformedEntry},
		{"empty code", ", No", ErrMalformedEntry},
		{"empty label", "1, ", ErrMalformedEntry},
		{"bar inside label splits the entry", "1, Either | or | 2, Yes", ErrMalformedEntry},
		{"duplicate label", "1, No | 2, No", ErrDuplicateLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.coding)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("broken") })
}
