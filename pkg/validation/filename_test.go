// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "ShipCase1.txt", "ShipCase1.txt"},
		{"spaces", "My Bay  3.txt", "My_Bay_3.txt"},
		{"traversal", "../../etc/passwd", "etc_passwd"},
		{"windows path", `C:\manifests\bay.txt`, "C_manifests_bay.txt"},
		{"accents", "Señor Café.txt", "Senor_Cafe.txt"},
		{"shell chars", "bay;rm -rf $HOME.txt", "bayrm_-rf_HOME.txt"},
		{"leading dots", "...hidden.txt", "hidden.txt"},
		{"reserved device", "con.txt", "_con.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeFilename(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeFilename_Empty(t *testing.T) {
	for _, input := range []string{"", "   ", "../..", "日本語"} {
		_, err := SanitizeFilename(input)
		assert.ErrorIs(t, err, ErrEmptyFilename, "input %q", input)
	}
}

func TestRequireExtension(t *testing.T) {
	assert.NoError(t, RequireExtension("bay.txt", ".txt"))
	assert.NoError(t, RequireExtension("bay.TXT", ".txt"))
	assert.ErrorIs(t, RequireExtension("bay.csv", ".txt"), ErrFileType)
	assert.ErrorIs(t, RequireExtension("bay", ".txt"), ErrFileType)
}

func TestSanitizeManifestName(t *testing.T) {
	got, err := SanitizeManifestName("../Ship Case 4.txt")
	require.NoError(t, err)
	assert.Equal(t, "Ship_Case_4.txt", got)

	_, err = SanitizeManifestName("payload.exe")
	assert.ErrorIs(t, err, ErrFileType)

	_, err = SanitizeManifestName("..")
	assert.ErrorIs(t, err, ErrEmptyFilename)
}
