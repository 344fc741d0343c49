package qrcode

import (
	"encoding/base64"
	"errors"
	"strings"

	skipqrcode "github.com/skip2/go-qrcode"
)

var (
	ErrEmptyContent           = errors.New("content cannot be empty")
	ErrFailedToGenerateQRCode = errors.New("failed to generate QR code")
)

// DefaultSize is the image edge in pixels when none is given.
const DefaultSize = 256

const dataURIPrefix = "data:image/png;base64,"

// PNG renders content as a square PNG of size pixels. otpauth URIs are long,
// so medium error correction keeps the symbol scannable on small screens.
func PNG(content string, size int) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if size <= 0 {
		size = DefaultSize
	}

	img, err := skipqrcode.Encode(content, skipqrcode.Medium, size)
	if err != nil {
		return nil, errors.Join(ErrFailedToGenerateQRCode, err)
	}
	return img, nil
}

// DataURI renders content as a PNG data URI for an <img src>.
func DataURI(content string, size int) (string, error) {
	img, err := PNG(content, size)
	if err != nil {
		return "", err
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(img), nil
}
