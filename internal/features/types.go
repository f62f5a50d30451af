// Package features computes local keypoints and compact binary descriptors
// from grayscale rasters, and provides the Hamming metric used to compare them.
package features

import "math/bits"

// DescriptorBytes is the descriptor width: 256 comparison bits.
const DescriptorBytes = 32

// Descriptor is a 256-bit binary fingerprint of a local image patch.
type Descriptor [DescriptorBytes]byte

// DescriptorSet is the ordered descriptor collection extracted from one raster.
type DescriptorSet []Descriptor

// Keypoint is a detected corner with its contrast score.
type Keypoint struct {
	X     int
	Y     int
	Score int
}

// HammingDistance counts differing bits between two descriptors (0..256).
func HammingDistance(a, b Descriptor) int {
	distance := 0
	for i := range a {
		distance += bits.OnesCount8(a[i] ^ b[i])
	}
	return distance
}
