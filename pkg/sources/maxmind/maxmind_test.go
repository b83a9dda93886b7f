// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package maxmind

import (
	"path/filepath"
	"testing"

	"github.com/oschwald/geoip2-golang"

	"powerdnscout/pkg/model"
)

func TestFromRecord(t *testing.T) {
	tests := []struct {
		name    string
		record  *geoip2.ASN
		want    *model.OwnershipLookup
		wantErr error
	}{
		{
			name:   "known network",
			record: &geoip2.ASN{AutonomousSystemNumber: 13335, AutonomousSystemOrganization: "CLOUDFLARENET"},
			want:   &model.OwnershipLookup{ASN: 13335, OwnerName: "CLOUDFLARENET"},
		},
		{
			name:    "address not in database",
			record:  &geoip2.ASN{},
			wantErr: model.ErrNotFound,
		},
		{
			name:    "nil record",
			wantErr: model.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fromRecord(tt.record)
			if err != tt.wantErr {
				t.Fatalf("fromRecord() error = %v, want %v", err, tt.wantErr)
			}
			if tt.want == nil {
				if got != nil {
					t.Errorf("fromRecord() = %+v, want nil", got)
				}
				return
			}
			if *got != *tt.want {
				t.Errorf("fromRecord() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestOpenMissingDatabase(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mmdb"))
	if err == nil {
		t.Fatal("Open() expected error for missing file")
	}
}
