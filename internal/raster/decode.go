package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/sync/errgroup"
)

// ImageLoadError reports a raster that could not be decoded. Index is the
// position of the source in a batch decode, or -1 for a single decode.
type ImageLoadError struct {
	Index int
	Err   error
}

func (e *ImageLoadError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("failed to load image: %v", e.Err)
	}
	return fmt.Sprintf("failed to load image %d: %v", e.Index, e.Err)
}

func (e *ImageLoadError) Unwrap() error {
	return e.Err
}

// Decode decodes PNG or JPEG bytes.
func Decode(data []byte) (image.Image, error) {
	return decode(-1, data)
}

func decode(index int, data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, &ImageLoadError{Index: index, Err: fmt.Errorf("empty image data")}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &ImageLoadError{Index: index, Err: err}
	}
	return img, nil
}

// DecodeAll decodes every blob concurrently and returns only once all of
// them have resolved. The first failure cancels the rest and is returned.
func DecodeAll(ctx context.Context, blobs [][]byte) ([]image.Image, error) {
	images := make([]image.Image, len(blobs))
	g, ctx := errgroup.WithContext(ctx)
	for i, blob := range blobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := decode(i, blob)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}
