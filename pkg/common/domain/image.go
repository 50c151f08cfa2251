package domain

import "context"

// Image is a stored object reference. Key is the object storage key used to release it.
type Image struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

func (i Image) IsZero() bool {
	return i.URL == "" && i.Key == ""
}

// Upload is a file received from a client, not yet stored.
type Upload struct {
	Filename    string
	ContentType string
	Body        []byte
}

type ObjectStorage interface {
	Put(ctx context.Context, body []byte, contentType, keyHint string) (Image, error)
	Delete(ctx context.Context, key string) error
}
