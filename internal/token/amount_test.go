package token

import (
	"math/big"
	"testing"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad big int %q", s)
	}
	return v
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     string
		wantErr  bool
	}{
		{"1", 18, "1000000000000000000", false},
		{"1.5", 18, "1500000000000000000", false},
		{"0.000001", 6, "1", false},
		{".5", 6, "500000", false},
		{"1850.45", 6, "1850450000", false},
		{"007", 0, "7", false},
		{"1.0000001", 6, "", true},
		{"-1", 18, "", true},
		{"1e18", 18, "", true},
		{"", 18, "", true},
		{".", 18, "", true},
	}

	for _, tt := range tests {
		got, err := ParseUnits(tt.in, tt.decimals)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseUnits(%q, %d) error = %v, wantErr %v", tt.in, tt.decimals, err, tt.wantErr)
			continue
		}
		if err == nil && got.String() != tt.want {
			t.Errorf("ParseUnits(%q, %d) = %v, want %v", tt.in, tt.decimals, got, tt.want)
		}
	}
}

func TestFormatFixed(t *testing.T) {
	tests := []struct {
		v        string
		decimals uint8
		places   uint8
		want     string
	}{
		{"1841197750", 6, 6, "1841.197750"},
		{"1500000000000000000", 18, 4, "1.5000"},
		{"1999999999999999999", 18, 4, "1.9999"},
		{"5", 18, 2, "0.00"},
		{"42", 0, 0, "42"},
		{"-1500000", 6, 2, "-1.50"},
	}

	for _, tt := range tests {
		if got := FormatFixed(mustBig(t, tt.v), tt.decimals, tt.places); got != tt.want {
			t.Errorf("FormatFixed(%s, %d, %d) = %v, want %v", tt.v, tt.decimals, tt.places, got, tt.want)
		}
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		v        string
		decimals uint8
		want     string
	}{
		{"1000000000000000000", 18, "1"},
		{"1841197750", 6, "1841.19775"},
		{"0", 6, "0"},
		{"1", 18, "0.000000000000000001"},
	}

	for _, tt := range tests {
		if got := FormatUnits(mustBig(t, tt.v), tt.decimals); got != tt.want {
			t.Errorf("FormatUnits(%s, %d) = %v, want %v", tt.v, tt.decimals, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	// 1.123456789012345678 with 18 decimals keeps 8 digits
	v := mustBig(t, "1123456789012345678")
	got := Truncate(v, 18, DisplayPrecision(18))
	if got.String() != "1123456780000000000" {
		t.Errorf("Truncate() = %v, want 1123456780000000000", got)
	}
	if v.String() != "1123456789012345678" {
		t.Error("Truncate() mutated its input")
	}

	small := mustBig(t, "1234567")
	if got := Truncate(small, 6, DisplayPrecision(6)); got.Cmp(small) != 0 {
		t.Errorf("Truncate() = %v, want %v", got, small)
	}
}

func TestDisplayPrecision(t *testing.T) {
	tests := []struct {
		in, want uint8
	}{
		{18, 8}, {8, 8}, {6, 6}, {0, 0},
	}
	for _, tt := range tests {
		if got := DisplayPrecision(tt.in); got != tt.want {
			t.Errorf("DisplayPrecision(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRate(t *testing.T) {
	in := mustBig(t, "1000000000000000000") // 1.0 (18)
	out := mustBig(t, "1850450000")         // 1850.45 (6)

	r := Rate(in, 18, out, 6)
	if r == nil {
		t.Fatal("Rate() returned nil")
	}
	if got := r.FloatString(2); got != "1850.45" {
		t.Errorf("Rate() = %v, want 1850.45", got)
	}
	if Rate(new(big.Int), 18, out, 6) != nil {
		t.Error("Rate() with zero input should be nil")
	}
}
