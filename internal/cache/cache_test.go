package cache

import (
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/features"
)

// countingExtractor wraps a fixed result and counts invocations.
type countingExtractor struct {
	mu     sync.Mutex
	calls  int
	result features.DescriptorSet
}

func (e *countingExtractor) Extract(_ *image.Gray) (features.DescriptorSet, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if len(e.result) == 0 {
		return nil, features.ErrNoFeatures
	}
	return e.result, nil
}

func (e *countingExtractor) Params() string { return "test-params" }

func (e *countingExtractor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// rawDecoder treats the payload as a 1x1 raster; cache tests do not care
// about real image decoding.
type rawDecoder struct{}

func (rawDecoder) Decode(payload []byte) (*image.Gray, error) {
	return image.NewGray(image.Rect(0, 0, 1, 1)), nil
}

func writeTempImage(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write temp image: %v", err)
	}
	return path
}

func TestDescriptors_MemoizesPerPath(t *testing.T) {
	extractor := &countingExtractor{result: make(features.DescriptorSet, 3)}
	c := New(rawDecoder{}, extractor)
	path := writeTempImage(t, t.TempDir(), "ref.jpg", []byte("v1"))

	for range 5 {
		set, err := c.Descriptors(path)
		if err != nil {
			t.Fatalf("Descriptors failed: %v", err)
		}
		if len(set) != 3 {
			t.Fatalf("expected 3 descriptors, got %d", len(set))
		}
	}

	if extractor.callCount() != 1 {
		t.Errorf("expected a single extraction, got %d", extractor.callCount())
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 cache entry, got %d", c.Len())
	}
}

func TestDescriptors_InvalidatesOnPhotoChange(t *testing.T) {
	extractor := &countingExtractor{result: make(features.DescriptorSet, 3)}
	c := New(rawDecoder{}, extractor)
	dir := t.TempDir()
	path := writeTempImage(t, dir, "ref.jpg", []byte("v1"))

	if _, err := c.Descriptors(path); err != nil {
		t.Fatalf("Descriptors failed: %v", err)
	}

	// Replace the photo; bump both size and modification time.
	writeTempImage(t, dir, "ref.jpg", []byte("version-two"))
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("failed to bump mtime: %v", err)
	}

	if _, err := c.Descriptors(path); err != nil {
		t.Fatalf("Descriptors after change failed: %v", err)
	}

	if extractor.callCount() != 2 {
		t.Errorf("expected recomputation after photo change, got %d calls", extractor.callCount())
	}
}

func TestDescriptors_MissingFile(t *testing.T) {
	c := New(rawDecoder{}, &countingExtractor{})

	_, err := c.Descriptors(filepath.Join(t.TempDir(), "missing.jpg"))

	if err == nil {
		t.Fatal("expected error for missing reference image")
	}
}

func TestDescriptors_FeaturelessImageYieldsEmptySet(t *testing.T) {
	extractor := &countingExtractor{} // empty result means ErrNoFeatures
	c := New(rawDecoder{}, extractor)
	path := writeTempImage(t, t.TempDir(), "blank.jpg", []byte("blank"))

	set, err := c.Descriptors(path)
	if err != nil {
		t.Fatalf("featureless reference should not error, got %v", err)
	}
	if len(set) != 0 {
		t.Errorf("expected empty descriptor set, got %d", len(set))
	}

	// The empty set is memoized too.
	if _, err := c.Descriptors(path); err != nil {
		t.Fatalf("second lookup failed: %v", err)
	}
	if extractor.callCount() != 1 {
		t.Errorf("expected the empty result to be cached, got %d calls", extractor.callCount())
	}
}

func TestDescriptors_ConcurrentReaders(t *testing.T) {
	extractor := &countingExtractor{result: make(features.DescriptorSet, 2)}
	c := New(rawDecoder{}, extractor)
	dir := t.TempDir()

	paths := make([]string, 8)
	for i := range paths {
		paths[i] = writeTempImage(t, dir, filepath.Base(dir)+string(rune('a'+i))+".jpg", []byte{byte(i)})
	}

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, p := range paths {
				if _, err := c.Descriptors(p); err != nil {
					t.Errorf("concurrent Descriptors failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if c.Len() != len(paths) {
		t.Errorf("expected %d entries, got %d", len(paths), c.Len())
	}
}
