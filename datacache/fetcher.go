package datacache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Fetcher retrieves the raw JSON document for a dataset key.
type Fetcher interface {
	FetchDataset(ctx context.Context, key string) ([]byte, error)
}

// HTTPFetcher GETs brand datasets from {BaseURL}/brands/{key}.json.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *HTTPFetcher) FetchDataset(ctx context.Context, key string) ([]byte, error) {
	url := fmt.Sprintf("%s/brands/%s.json", f.BaseURL, key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Key: key, Err: err}
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, &FetchError{Key: key, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Key: key, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Key: key, Err: err}
	}
	return body, nil
}

// FileFetcher reads datasets from a local directory, {Dir}/{key}.json with
// an optional .zst variant. Used for snapshots and offline runs.
type FileFetcher struct {
	Dir string
}

func (f *FileFetcher) FetchDataset(_ context.Context, key string) ([]byte, error) {
	for _, name := range []string{key + ".json", key + ".json.zst"} {
		data, err := readMaybeCompressed(filepath.Join(f.Dir, name))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, &FetchError{Key: key, Err: err}
		}
	}
	return nil, &FetchError{Key: key, Err: os.ErrNotExist}
}

func readMaybeCompressed(name string) ([]byte, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if strings.HasSuffix(name, ".zst") {
		dec, err := zstd.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("can`t create zstd reader: %w", err)
		}
		defer dec.Close()
		return io.ReadAll(dec)
	}

	return io.ReadAll(file)
}
