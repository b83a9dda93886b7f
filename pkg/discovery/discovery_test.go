// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package discovery

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerdnscout/pkg/model"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []model.Host
		wantErr bool
	}{
		{
			name: "all field counts",
			input: `# candidate resolvers
192.0.2.1
192.0.2.2,Germany
192.0.2.3, France , "Example, Inc."
`,
			want: []model.Host{
				{Address: "192.0.2.1"},
				{Address: "192.0.2.2", Country: "Germany"},
				{Address: "192.0.2.3", Country: "France", Organization: "Example, Inc."},
			},
		},
		{
			name:  "blank lines and empty address skipped",
			input: "\n\n ,Nowhere\n2001:db8::53\n",
			want:  []model.Host{{Address: "2001:db8::53"}},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
		{
			name:    "too many fields",
			input:   "192.0.2.1,DE,Org,extra\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(strings.NewReader(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileDiscover(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.txt")
	require.NoError(t, os.WriteFile(path, []byte("198.51.100.7,Japan,Example KK\n"), 0o644))

	hosts, err := File{Path: path}.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.Host{{Address: "198.51.100.7", Country: "Japan", Organization: "Example KK"}}, hosts)

	_, err = File{Path: filepath.Join(t.TempDir(), "missing")}.Discover(context.Background())
	assert.Error(t, err)
}
