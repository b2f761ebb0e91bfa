package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Uploader posts captured photos to the image collection server.
type Uploader struct {
	url    string
	client *http.Client
	newID  func() string
}

// NewUploader returns an uploader for o.URL.
func NewUploader(o UploadOptions) *Uploader {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Uploader{
		url:    o.URL,
		client: &http.Client{Timeout: timeout},
		newID:  func() string { return uuid.New().String() },
	}
}

// Capture acquires one frame from cam and uploads it.  The frame is released
// once the POST has completed or failed.  It returns the capture ID sent with
// the upload.
func (u *Uploader) Capture(ctx context.Context, cam Camera) (string, error) {
	f, err := cam.Acquire(ctx)
	if err != nil {
		return "", newError(KindAcquisition, "capture photo", "", err)
	}
	defer cam.Release(f)

	data := f.Buf
	if f.Format != PixelJPEG {
		if data, err = frameToJPEG(f, streamJPEGQuality); err != nil {
			return "", newError(KindAcquisition, "capture photo", "encode", err)
		}
	}
	id := u.newID()
	if err := u.post(ctx, id, data); err != nil {
		return id, err
	}
	return id, nil
}

func (u *Uploader) post(ctx context.Context, id string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, bytes.NewReader(data))
	if err != nil {
		return newError(KindTransport, "upload", "", err)
	}
	req.Header.Set("Content-Type", "image/jpg")
	req.Header.Set("X-Capture-ID", id)

	resp, err := u.client.Do(req)
	if err != nil {
		return newError(KindTransport, "upload", "", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(KindTransport, "upload", fmt.Sprintf("server returned %s", resp.Status), nil)
	}
	return nil
}
