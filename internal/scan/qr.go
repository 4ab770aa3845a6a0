// Package scan turns external capture payloads (QR envelopes, face
// matches) into student identities. The marking layer never sees the
// scan technology behind these contracts.
package scan

import (
	"encoding/json"
	"errors"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"

	"attendtrack/internal/model"
)

// ErrMalformedPayload signals an unparseable or incomplete QR envelope.
var ErrMalformedPayload = errors.New("malformed qr payload")

// DecodePayload parses a raw scanned string into the QR envelope. The
// envelope must identify a student by internal id or admission number.
func DecodePayload(payload string) (model.QRData, error) {
	var data model.QRData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return model.QRData{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if data.StudentID == "" && data.AdmissionNo == "" {
		return model.QRData{}, fmt.Errorf("%w: no student identity", ErrMalformedPayload)
	}
	return data, nil
}

// QRCodePNG renders a student's payload as a scannable PNG of the given
// pixel size.
func QRCodePNG(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}
