package idcode

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  uint32
		want IDCode
	}{
		{
			// Cortex-M3 SW-DP IDCODE.
			name: "arm cortex dap",
			raw:  0x2BA01477,
			want: IDCode{Raw: 0x2BA01477, Version: 2, Part: 0xBA01, Manufacturer: 0x23B, Valid: true},
		},
		{
			name: "raspberry pi rp2040",
			raw:  0x10002927,
			want: IDCode{Raw: 0x10002927, Version: 1, Part: 0x0002, Manufacturer: 0x493, Valid: true},
		},
		{
			name: "no idcode bit",
			raw:  0x2BA01476,
			want: IDCode{Raw: 0x2BA01476, Version: 2, Part: 0xBA01, Manufacturer: 0x23B, Valid: false},
		},
		{
			name: "all zero",
			raw:  0,
			want: IDCode{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Parse(tt.raw); got != tt.want {
				t.Errorf("Parse(0x%08X) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestManufacturerName(t *testing.T) {
	arm := Parse(0x4BA00477)
	if got := arm.ManufacturerName(); got != "ARM" {
		t.Errorf("ManufacturerName() = %q, want ARM", got)
	}

	unknown := IDCode{Manufacturer: 0x7FE}
	if got := unknown.ManufacturerName(); !strings.Contains(got, "0x7FE") {
		t.Errorf("unknown code rendered as %q", got)
	}
}

func TestString(t *testing.T) {
	if s := Parse(0x4BA00477).String(); !strings.Contains(s, "ARM") {
		t.Errorf("String() = %q, want manufacturer name included", s)
	}
	if s := Parse(0x00000000).String(); !strings.Contains(s, "no IDCODE") {
		t.Errorf("String() = %q, want no-IDCODE marker", s)
	}
}
