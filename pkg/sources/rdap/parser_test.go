// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package rdap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vcard(name string) []any {
	return []any{"vcard", []any{
		[]any{"version", map[string]any{}, "text", "4.0"},
		[]any{"fn", map[string]any{}, "text", name},
	}}
}

func TestOwnerName(t *testing.T) {
	tests := []struct {
		name     string
		response *Response
		want     string
		wantErr  bool
	}{
		{
			name: "customer beats registrant",
			response: &Response{Entities: []Entity{
				{Handle: "ISP-1", Roles: []string{"registrant"}, VCardArray: vcard("Big ISP")},
				{Handle: "C-1", Roles: []string{"customer"}, VCardArray: vcard("Small Customer")},
			}},
			want: "Small Customer",
		},
		{
			name: "ORG registrant beats plain registrant",
			response: &Response{Entities: []Entity{
				{Handle: "PERSON-1", Roles: []string{"registrant"}, VCardArray: vcard("John Doe")},
				{Handle: "ORG-EX1-RIPE", Roles: []string{"Registrant"}, VCardArray: vcard("Example BV")},
			}},
			want: "Example BV",
		},
		{
			name: "maintainers skipped",
			response: &Response{Name: "EXAMPLE-NET", Entities: []Entity{
				{Handle: "EX-MNT", Roles: []string{"registrant"}, VCardArray: vcard("Maintainer")},
			}},
			want: "EXAMPLE-NET",
		},
		{
			name: "network name beats technical contact",
			response: &Response{Name: "ACME-CORP", Entities: []Entity{
				{Handle: "T-1", Roles: []string{"technical"}, VCardArray: vcard("Tech Person")},
			}},
			want: "ACME-CORP",
		},
		{
			name: "nested entity name",
			response: &Response{Entities: []Entity{
				{Handle: "R-1", Roles: []string{"registrant"}, Entities: []Entity{
					{Handle: "R-2", VCardArray: vcard("  Nested   Org  ")},
				}},
			}},
			want: "Nested Org",
		},
		{
			name: "remarks",
			response: &Response{Remarks: []Remark{
				{Description: []string{"some text", "org-name: Remark Org"}},
			}},
			want: "Remark Org",
		},
		{
			name:     "nothing usable",
			response: &Response{},
			wantErr:  true,
		},
		{
			name:    "nil response",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OwnerName(tt.response)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanOrgName(t *testing.T) {
	assert.Equal(t, "Example Org", CleanOrgName(`  "Example   Org" `))
	assert.Equal(t, "", CleanOrgName("   "))
}
