package scan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScanInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Token
		wantErr string
	}{
		{
			name:  "bare awb is canonicalized",
			input: "tac12345678",
			want:  Token{Kind: KindShipment, AWB: "TAC12345678", Raw: "tac12345678"},
		},
		{
			name:  "surrounding whitespace is trimmed",
			input: "  TAC00000001\n",
			want:  Token{Kind: KindShipment, AWB: "TAC00000001", Raw: "TAC00000001"},
		},
		{
			name:  "implicit shipment envelope",
			input: `{"v":1,"awb":"tac48878789"}`,
			want:  Token{Kind: KindShipment, AWB: "TAC48878789", Raw: `{"v":1,"awb":"tac48878789"}`},
		},
		{
			name:  "explicit shipment envelope keeps metadata",
			input: `{"v":1,"type":"shipment","awb":"TAC48878789","metadata":{"pieces":2}}`,
			want: Token{
				Kind:     KindShipment,
				AWB:      "TAC48878789",
				Metadata: map[string]any{"pieces": float64(2)},
				Raw:      `{"v":1,"type":"shipment","awb":"TAC48878789","metadata":{"pieces":2}}`,
			},
		},
		{
			name:  "manifest envelope",
			input: `{"v":1,"type":"manifest","id":"m-1","manifestNo":"mnf-2024-000123","route":"IMF-DEL"}`,
			want: Token{
				Kind:       KindManifest,
				ManifestID: "m-1",
				ManifestNo: "mnf-2024-000123",
				Route:      "IMF-DEL",
				Raw:        `{"v":1,"type":"manifest","id":"m-1","manifestNo":"mnf-2024-000123","route":"IMF-DEL"}`,
			},
		},
		{
			name:  "package envelope",
			input: `{"v":1,"type":"package","packageId":"PKG-001","awb":"tac12345678"}`,
			want: Token{
				Kind:      KindPackage,
				PackageID: "PKG-001",
				AWB:       "tac12345678",
				Raw:       `{"v":1,"type":"package","packageId":"PKG-001","awb":"tac12345678"}`,
			},
		},
		{
			name:  "package envelope with carrier awb",
			input: `{"v":1,"type":"package","packageId":"PKG-002","awb":"160-12345675"}`,
			want: Token{
				Kind:      KindPackage,
				PackageID: "PKG-002",
				AWB:       "160-12345675",
				Raw:       `{"v":1,"type":"package","packageId":"PKG-002","awb":"160-12345675"}`,
			},
		},
		{
			name:  "bare manifest number",
			input: "mnf-2024-000123",
			want:  Token{Kind: KindManifest, ManifestNo: "MNF-2024-000123", Raw: "mnf-2024-000123"},
		},
		{
			name:  "generated manifest number",
			input: "man-20260115-093000",
			want:  Token{Kind: KindManifest, ManifestNo: "MAN-20260115-093000", Raw: "man-20260115-093000"},
		},
		{name: "empty", input: "   ", wantErr: "Empty scan input"},
		{name: "malformed json", input: `{"v":1,"awb":`, wantErr: "Invalid JSON in scan input"},
		{name: "version 2", input: `{"v":2,"awb":"TAC12345678"}`, wantErr: "Unsupported scan payload version"},
		{name: "version as string", input: `{"v":"1","awb":"TAC12345678"}`, wantErr: "Unsupported scan payload version"},
		{name: "missing version", input: `{"awb":"TAC12345678"}`, wantErr: "Unsupported scan payload version"},
		{name: "manifest without ids", input: `{"v":1,"type":"manifest"}`, wantErr: "Manifest scan requires id or manifestNo"},
		{name: "package without id", input: `{"v":1,"type":"package","awb":"TAC12345678"}`, wantErr: "Package scan requires packageId"},
		{name: "bad awb in payload", input: `{"v":1,"awb":"TAC123"}`, wantErr: "Invalid AWB format in payload"},
		{name: "envelope without shape", input: `{"v":1}`, wantErr: "Invalid scan payload structure"},
		{name: "awb with nine digits", input: "TAC123456789", wantErr: "Invalid scan format: TAC123456789"},
		{name: "long garbage is truncated", input: "THIS-IS-NOT-A-VALID-LABEL", wantErr: "Invalid scan format: THIS-IS-NOT-A-VALID-..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScanInput(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
				assert.True(t, errors.Is(err, ErrInvalidFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseScanInputIsDeterministic(t *testing.T) {
	inputs := []string{
		"tac12345678",
		`{"v":1,"type":"manifest","id":"m-1","metadata":{"a":[1,2,3]}}`,
		"MNF-2024-000001",
	}
	for _, in := range inputs {
		first, err := ParseScanInput(in)
		require.NoError(t, err)
		for i := 0; i < 100; i++ {
			again, err := ParseScanInput(in)
			require.NoError(t, err)
			require.Equal(t, first, again)
		}
	}
}

func TestNormalized(t *testing.T) {
	tok, err := ParseScanInput(`{"v":1,"type":"manifest","id":"abc"}`)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.Normalized())

	tok, err = ParseScanInput("tac11112222")
	require.NoError(t, err)
	assert.Equal(t, "TAC11112222", tok.Normalized())
}

func TestQRPayloadsRoundTrip(t *testing.T) {
	raw, err := ShipmentQRPayload("tac12345678")
	require.NoError(t, err)
	tok, err := ParseScanInput(raw)
	require.NoError(t, err)
	assert.Equal(t, KindShipment, tok.Kind)
	assert.Equal(t, "TAC12345678", tok.AWB)

	raw, err = ManifestQRPayload("id-1", "MAN-20260101-101010", "IMF", "GAU")
	require.NoError(t, err)
	tok, err = ParseScanInput(raw)
	require.NoError(t, err)
	assert.Equal(t, KindManifest, tok.Kind)
	assert.Equal(t, "id-1", tok.ManifestID)
	assert.Equal(t, "IMF-GAU", tok.Route)

	_, err = ShipmentQRPayload("nope")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}
