package scan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ManifestQRPayload renders the envelope printed on a manifest sheet.
func ManifestQRPayload(id, manifestNo, fromHubCode, toHubCode string) (string, error) {
	b, err := json.Marshal(envelope{
		V:          PayloadVersion,
		Type:       string(KindManifest),
		ID:         id,
		ManifestNo: manifestNo,
		Route:      fmt.Sprintf("%s-%s", fromHubCode, toHubCode),
	})
	if err != nil {
		return "", fmt.Errorf("encode manifest qr payload: %w", err)
	}
	return string(b), nil
}

// ShipmentQRPayload renders the envelope printed on a shipment label.
func ShipmentQRPayload(awb string) (string, error) {
	if !IsValidAWB(awb) {
		return "", invalid("Invalid AWB format in payload")
	}
	b, err := json.Marshal(envelope{V: PayloadVersion, AWB: strings.ToUpper(awb)})
	if err != nil {
		return "", fmt.Errorf("encode shipment qr payload: %w", err)
	}
	return string(b), nil
}
