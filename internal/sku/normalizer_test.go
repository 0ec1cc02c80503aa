package sku

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		desc       string
		identifier string
		want       entity.NormalizedSku
	}{
		{
			name: "sku marker with dash",
			desc: "Widget SKU: ABC-123",
			want: entity.NormalizedSku{FullSku: "ABC-123", ParentSku: "ABC", QBMatchKey: "ABC:ABC-123"},
		},
		{
			name:       "identifier wins over marker",
			desc:       "Widget SKU: ABC-123",
			identifier: " ZZ-9 ",
			want:       entity.NormalizedSku{FullSku: "ZZ-9", ParentSku: "ZZ", QBMatchKey: "ZZ:ZZ-9"},
		},
		{
			name: "sku marker without dash",
			desc: "Lamp SKU: LMP77 blanca",
			want: entity.NormalizedSku{FullSku: "LMP77", ParentSku: "LMP77", QBMatchKey: "LMP77:LMP77"},
		},
		{
			name: "sku marker trailing comma",
			desc: "Mesa SKU: MS-4, roble",
			want: entity.NormalizedSku{FullSku: "MS-4", ParentSku: "MS", QBMatchKey: "MS:MS-4"},
		},
		{
			name: "codigo without accent",
			desc: "Silla Codigo: SL-2 negra",
			want: entity.NormalizedSku{FullSku: "SL-2", ParentSku: "SL", QBMatchKey: "SL:SL-2"},
		},
		{
			name: "codigo with accent",
			desc: "Silla Código: SL-3",
			want: entity.NormalizedSku{FullSku: "SL-3", ParentSku: "SL", QBMatchKey: "SL:SL-3"},
		},
		{
			name: "sku marker beats brackets",
			desc: "Item [XYZ9] SKU: Q-1",
			want: entity.NormalizedSku{FullSku: "Q-1", ParentSku: "Q", QBMatchKey: "Q:Q-1"},
		},
		{
			name: "bracketed",
			desc: "Item [XYZ9]",
			want: entity.NormalizedSku{FullSku: "XYZ9", ParentSku: "XYZ9", QBMatchKey: "XYZ9:XYZ9"},
		},
		{
			name: "brackets beat parentheses",
			desc: "Item (P-1) [B-2]",
			want: entity.NormalizedSku{FullSku: "B-2", ParentSku: "B", QBMatchKey: "B:B-2"},
		},
		{
			name: "parenthesized with digit",
			desc: "Cable (CBL-10 metros largo)",
			want: entity.NormalizedSku{FullSku: "CBL-10 metros largo", ParentSku: "CBL", QBMatchKey: "CBL:CBL-10 metros largo"},
		},
		{
			name: "parenthesized short word",
			desc: "Tabla (roble)",
			want: entity.NormalizedSku{FullSku: "roble", ParentSku: "roble", QBMatchKey: "roble:roble"},
		},
		{
			name: "parenthesized single letter",
			desc: "Cheap gadget (a)",
			want: entity.NormalizedSku{QBMatchKey: "Cheap gadget (a)"},
		},
		{
			name: "parenthesized nine letters accepted",
			desc: "Thing (abcdefghi)",
			want: entity.NormalizedSku{FullSku: "abcdefghi", ParentSku: "abcdefghi", QBMatchKey: "abcdefghi:abcdefghi"},
		},
		{
			name: "parenthesized ten letters rejected",
			desc: "Thing (abcdefghij)",
			want: entity.NormalizedSku{QBMatchKey: "Thing (abcdefghij)"},
		},
		{
			name: "parenthesized prose rejected",
			desc: "Servicio (incluye instalacion)",
			want: entity.NormalizedSku{QBMatchKey: "Servicio (incluye instalacion)"},
		},
		{
			name: "marker with nothing after falls through",
			desc: "Broken [ALT-5] SKU:   ",
			want: entity.NormalizedSku{FullSku: "ALT-5", ParentSku: "ALT", QBMatchKey: "ALT:ALT-5"},
		},
		{
			name: "unclosed bracket ignored",
			desc: "Odd [item",
			want: entity.NormalizedSku{QBMatchKey: "Odd [item"},
		},
		{
			name: "no code falls back to description",
			desc: "  Plain description  ",
			want: entity.NormalizedSku{QBMatchKey: "Plain description"},
		},
		{
			name: "leading dash leaves parent empty",
			desc: "SKU: -X",
			want: entity.NormalizedSku{FullSku: "-X", QBMatchKey: "SKU: -X"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.desc, tt.identifier)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Normalize(%q, %q) mismatch (-want +got):\n%s", tt.desc, tt.identifier, diff)
			}
		})
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	desc := "Chair SKU: WOOD-1"
	first := Normalize(desc, "")
	for i := 0; i < 5; i++ {
		if got := Normalize(desc, ""); got != first {
			t.Fatalf("run %d: got %+v, want %+v", i, got, first)
		}
	}
}

func TestSplitDash(t *testing.T) {
	tests := []struct {
		in, parent, child string
	}{
		{"24fauxbois-sharbor", "24fauxbois", "sharbor"},
		{"A-B-C", "A", "B-C"},
		{"PLAIN", "PLAIN", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		p, c := SplitDash(tt.in)
		if p != tt.parent || c != tt.child {
			t.Errorf("SplitDash(%q) = (%q, %q), want (%q, %q)", tt.in, p, c, tt.parent, tt.child)
		}
	}
}

func TestStripNonAlnum(t *testing.T) {
	tests := map[string]string{
		"24FauxBois:24fauxbois-SHarbor": "24fauxbois24fauxboissharbor",
		"Código 7":                      "código7",
		"--":                            "",
	}
	for in, want := range tests {
		if got := StripNonAlnum(in); got != want {
			t.Errorf("StripNonAlnum(%q) = %q, want %q", in, got, want)
		}
	}
}
