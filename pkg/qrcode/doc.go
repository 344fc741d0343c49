// Package qrcode renders provisioning URIs as PNG QR codes, either as raw
// bytes or as a data URI for embedding in a JSON response or HTML page.
//
//	uri, err := qrcode.DataURI(enrollment.URI, qrcode.DefaultSize)
package qrcode
