package qrcode_test

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonmart/authcore/pkg/qrcode"
)

const provisioningURI = "otpauth://totp/Lessonmart:author@example.com?algorithm=SHA1&digits=6&issuer=Lessonmart&period=30&secret=JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

func TestPNG(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		size     int
		wantSize int
	}{
		{name: "requested size", size: 320, wantSize: 320},
		{name: "zero uses default", size: 0, wantSize: qrcode.DefaultSize},
		{name: "negative uses default", size: -1, wantSize: qrcode.DefaultSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data, err := qrcode.PNG(provisioningURI, tt.size)
			require.NoError(t, err)

			img, err := png.Decode(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, tt.wantSize, img.Bounds().Dx())
			assert.Equal(t, tt.wantSize, img.Bounds().Dy())
		})
	}
}

func TestPNG_EmptyContent(t *testing.T) {
	t.Parallel()

	for _, content := range []string{"", "  \t\n"} {
		data, err := qrcode.PNG(content, 0)
		assert.ErrorIs(t, err, qrcode.ErrEmptyContent)
		assert.Nil(t, data)

		uri, err := qrcode.DataURI(content, 0)
		assert.ErrorIs(t, err, qrcode.ErrEmptyContent)
		assert.Empty(t, uri)
	}
}

func TestDataURI(t *testing.T) {
	t.Parallel()

	uri, err := qrcode.DataURI(provisioningURI, 200)
	require.NoError(t, err)

	payload, ok := strings.CutPrefix(uri, "data:image/png;base64,")
	require.True(t, ok, uri[:min(len(uri), 32)])

	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
}
