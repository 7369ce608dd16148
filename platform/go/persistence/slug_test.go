package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSlug(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "acme-co", want: "acme-co"},
		{in: "  Acme-Co  ", want: "acme-co"},
		{in: "a1-b2-c3", want: "a1-b2-c3"},
		{in: "", wantErr: true},
		{in: "   ", wantErr: true},
		{in: "-leading", wantErr: true},
		{in: "trailing-", wantErr: true},
		{in: "double--dash", wantErr: true},
		{in: "under_score", wantErr: true},
		{in: "space in slug", wantErr: true},
	}

	for _, tc := range cases {
		got, err := NormalizeSlug(tc.in)
		if tc.wantErr {
			require.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		require.Equal(t, tc.want, got)
	}
}
