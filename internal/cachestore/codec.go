package cachestore

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/bytedance/sonic"
)

const compressionLevel = brotli.DefaultCompression

func encodeBody(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, compressionLevel)
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("compress body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress body: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeBody(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	body, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("decompress body: %w", err)
	}
	return body, nil
}

func encodeHeader(h http.Header) (string, error) {
	if len(h) == 0 {
		return "{}", nil
	}
	s, err := sonic.ConfigDefault.MarshalToString(h)
	if err != nil {
		return "", fmt.Errorf("encode header: %w", err)
	}
	return s, nil
}

// decodeHeader also accepts the older single-value encoding.
func decodeHeader(s string) (http.Header, error) {
	h := http.Header{}
	if s == "" {
		return h, nil
	}
	if err := sonic.ConfigDefault.UnmarshalFromString(s, &h); err == nil {
		return h, nil
	}
	single := map[string]string{}
	if err := sonic.ConfigDefault.UnmarshalFromString(s, &single); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	h = make(http.Header, len(single))
	for k, v := range single {
		h.Set(k, v)
	}
	return h, nil
}
