package scene

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoImages is returned when discovery finds no candidate input images.
var ErrNoImages = errors.New("no input images found")

// CollectImages walks root recursively and returns one View per file whose
// extension matches the filter, in sorted-path order. View ids are assigned
// ascending from 0 and never change afterwards.
func CollectImages(root string, extensions []string) ([]View, error) {
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if allowed[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("%w under %s (extensions %v)", ErrNoImages, root, extensions)
	}

	sort.Strings(paths)

	views := make([]View, len(paths))
	for i, path := range paths {
		views[i] = View{ID: i, Path: path}
	}
	return views, nil
}

// LoadImage decodes a discovered image from disk. PNG and JPEG are
// registered; anything else fails with the decoder's error. This is the
// only pixel access the pipeline performs, and only the visualization
// step uses it.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image %s: %w", path, err)
	}
	return img, nil
}
