package comparator

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

// ErrFileNotFound is returned when an image path does not exist. It is raised
// before any request is sent.
var ErrFileNotFound = errors.New("image path not found")

// ComparisonRequest names the two images and the endpoint that compares them.
type ComparisonRequest struct {
	Image1Path  string
	Image2Path  string
	EndpointURL string
}

// ImagePayload is the JSON body posted to the endpoint.
type ImagePayload struct {
	Image1 string `json:"image1"`
	Image2 string `json:"image2"`
}

// ImageInfo describes an image that was read and sent.
type ImageInfo struct {
	Path string
	Size int
	SHA1 string
	MIME string
}

type encodedImage struct {
	info    ImageInfo
	encoded string
}

func loadBase64(path string) (*encodedImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("read image %s: %w", path, err)
	}

	sum := sha1.Sum(data)
	return &encodedImage{
		info: ImageInfo{
			Path: path,
			Size: len(data),
			SHA1: hex.EncodeToString(sum[:]),
			MIME: mimetype.Detect(data).String(),
		},
		encoded: base64.StdEncoding.EncodeToString(data),
	}, nil
}
