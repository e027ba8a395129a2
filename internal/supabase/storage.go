package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StorageClient handles storage bucket operations.
type StorageClient struct {
	client *Client
}

// From returns a bucket client.
func (s *StorageClient) From(bucket string) *BucketClient {
	return &BucketClient{client: s.client, bucket: bucket}
}

// BucketClient operates on one storage bucket.
type BucketClient struct {
	client *Client
	bucket string
}

// Upload stores data at path and returns nothing; use PublicURL for the
// served location.
func (b *BucketClient) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	urlStr := fmt.Sprintf("%s/object/%s/%s", b.client.storageURL, b.bucket, path)

	req, err := http.NewRequestWithContext(ctx, "POST", urlStr, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", b.client.apiKey())
	req.Header.Set("Authorization", "Bearer "+b.client.apiKey())
	req.Header.Set("Content-Type", contentType)
	// Overwrite on re-upload of the same path.
	req.Header.Set("x-upsert", "true")

	resp, err := b.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return parseError(body, resp.StatusCode)
	}
	return nil
}

// Download retrieves the object at path.
func (b *BucketClient) Download(ctx context.Context, path string) ([]byte, error) {
	urlStr := fmt.Sprintf("%s/object/%s/%s", b.client.storageURL, b.bucket, path)

	respBody, statusCode, err := b.client.request(ctx, "GET", urlStr, nil, nil)
	if err != nil {
		return nil, err
	}
	if statusCode >= 400 {
		return nil, parseError(respBody, statusCode)
	}
	return respBody, nil
}

// Remove deletes the given object paths.
func (b *BucketClient) Remove(ctx context.Context, paths []string) error {
	urlStr := fmt.Sprintf("%s/object/%s", b.client.storageURL, b.bucket)

	body, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	respBody, statusCode, err := b.client.request(ctx, "DELETE", urlStr, body, nil)
	if err != nil {
		return err
	}
	if statusCode >= 400 {
		return parseError(respBody, statusCode)
	}
	return nil
}

// PublicURL returns the public URL for an object in a public bucket.
func (b *BucketClient) PublicURL(path string) string {
	return fmt.Sprintf("%s/object/public/%s/%s", b.client.storageURL, b.bucket, path)
}
