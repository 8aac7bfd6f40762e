package domain

import (
	"context"
	"io"
	"time"
)

// Media is a resolved video: metadata plus an open stream.
// The receiver of a Media owns Body and must close it.
type Media struct {
	Title    string
	URL      string
	VideoID  string
	MimeType string
	Quality  string
	Size     int64 // bytes, 0 when unknown
	Duration time.Duration
	Body     io.ReadCloser
}

// Close releases the underlying stream.
func (m *Media) Close() error {
	if m == nil || m.Body == nil {
		return nil
	}
	return m.Body.Close()
}

// FileName returns a file name suitable for upload.
func (m *Media) FileName() string {
	name := m.VideoID
	if name == "" {
		name = "video"
	}
	return name + ".mp4"
}

// MediaResolver turns a video URL into Media.
type MediaResolver interface {
	Resolve(ctx context.Context, url string) (*Media, error)
}
