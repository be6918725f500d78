// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package textutils

import "testing"

func TestLowerASCIIFolding(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  SUNDAY ", "sunday"},
		{"Dirección", "direccion"},
		{"E-Transfer", "e-transfer"},
		{"Montréal", "montreal"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := LowerASCIIFolding(tt.in); got != tt.want {
				t.Errorf("LowerASCIIFolding(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeKey(t *testing.T) {
	a := NormalizeKey("  123  Main St,\tVancouver ")
	b := NormalizeKey("123 main st, VANCOUVER")

	if a != b {
		t.Errorf("keys differ: %q vs %q", a, b)
	}

	if a != "123 main st, vancouver" {
		t.Errorf("NormalizeKey() = %q", a)
	}
}
