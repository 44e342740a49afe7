package conversations

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
)

// compressContent gzips and base64-encodes message content for at-rest
// storage of old messages.
func compressContent(content string) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(content)); err != nil {
		return "", errors.Wrap(err, "failed to compress content")
	}
	if err := gz.Close(); err != nil {
		return "", errors.Wrap(err, "failed to finalize compressed content")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// decompressContent reverses compressContent.
func decompressContent(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Wrap(err, "failed to decode compressed content")
	}
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", errors.Wrap(err, "failed to open compressed content")
	}
	defer gz.Close()
	out, err := io.ReadAll(gz)
	if err != nil {
		return "", errors.Wrap(err, "failed to decompress content")
	}
	return string(out), nil
}
