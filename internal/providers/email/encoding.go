package email

import (
	"encoding/base64"
	"io"
	"mime/quotedprintable"
)

// RFC 2045 caps encoded lines at 76 characters.
const base64LineLen = 76

func writeQuotedPrintable(w io.Writer, body string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}

func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > base64LineLen {
		if _, err := io.WriteString(w, encoded[:base64LineLen]+"\r\n"); err != nil {
			return err
		}
		encoded = encoded[base64LineLen:]
	}
	_, err := io.WriteString(w, encoded+"\r\n")
	return err
}
