package collection

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxBody = 16 << 20

var defaultHTTPClient = &http.Client{Timeout: 20 * time.Second}

// get fetches url and returns the body of a 2xx response.
func get(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = defaultHTTPClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "gstaldergeist/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("GET %s: http %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBody))
}
