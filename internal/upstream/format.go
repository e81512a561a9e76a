package upstream

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/Davincible/toolbridge/internal/providers"
)

// maxErrorBody bounds how much of a failed response is kept in errors.
const maxErrorBody = 512

// Call is one upstream completion request.
type Call struct {
	Model       string
	Prompt      string
	Temperature float64
	TopP        *float64
	MaxTokens   int
	Stop        []string
}

// Format is a provider wire format. Implementations perform exactly one
// request; retries belong to Client.
type Format interface {
	Name() string
	Complete(ctx context.Context, httpClient *http.Client, p providers.Provider, call Call) (string, error)
}

// Formats returns the built-in wire formats keyed by name.
func Formats() map[string]Format {
	formats := []Format{openAIFormat{}, completionFormat{}, anthropicFormat{}}
	out := make(map[string]Format, len(formats))
	for _, f := range formats {
		out[f.Name()] = f
	}
	return out
}

// response is a fully read, decompressed upstream reply.
type response struct {
	body        []byte
	contentType string
}

func postJSON(ctx context.Context, httpClient *http.Client, url string, headers http.Header, payload any) (*response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, values := range headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	// Set explicitly so the transport leaves decoding to decompressReader.
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	reader, err := decompressReader(resp)
	if err != nil {
		return nil, fmt.Errorf("decompress response: %w", err)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody] + "..."
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}

	return &response{body: data, contentType: resp.Header.Get("Content-Type")}, nil
}

func decompressReader(resp *http.Response) (io.Reader, error) {
	var bodyReader io.Reader = resp.Body

	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		bodyReader = gzipReader
	case "br":
		bodyReader = brotli.NewReader(resp.Body)
	}

	return bodyReader, nil
}
