package features

import (
	"errors"
	"image"
	"math/rand"
	"sort"
	"strconv"
)

// ErrNoFeatures signals that a raster produced zero descriptors. This is a
// normal outcome for low-texture frames (blank wall, lens cap), not a defect.
var ErrNoFeatures = errors.New("no features detected")

const (
	// fastThreshold is the minimum contrast between a pixel and its ring
	// neighbors for the segment test.
	fastThreshold = 20
	// fastArc is the required contiguous arc length on the 16-pixel ring.
	fastArc = 9
	// patchMargin keeps descriptor sampling (offsets up to ±15 plus the 5x5
	// smoothing window) inside the raster.
	patchMargin = 18
	// patternSeed fixes the descriptor sampling pattern. Changing it
	// invalidates every stored descriptor set.
	patternSeed = 0x5f3c91
)

// ring3 is the 16-pixel Bresenham circle of radius 3 used by the segment test.
var ring3 = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// pattern holds the 256 point pairs compared to form one descriptor.
// Generated once from a fixed seed so extraction is deterministic.
var pattern [256][4]int

func init() {
	rng := rand.New(rand.NewSource(patternSeed))
	for i := range pattern {
		for j := range 4 {
			pattern[i][j] = rng.Intn(31) - 15
		}
	}
}

// Extractor detects corners and computes binary descriptors. Output is
// deterministic for a fixed raster and a fixed configuration.
type Extractor struct {
	maxKeypoints int
}

// NewExtractor creates an extractor bounded at maxKeypoints per raster.
// The cap is a performance/quality tuning parameter, not a correctness one.
func NewExtractor(maxKeypoints int) *Extractor {
	if maxKeypoints <= 0 {
		maxKeypoints = 1000
	}
	return &Extractor{maxKeypoints: maxKeypoints}
}

// Params identifies the extractor configuration for cache keying.
func (e *Extractor) Params() string {
	return "fast9-brief256/" + strconv.Itoa(e.maxKeypoints)
}

// Extract returns the descriptor set for a grayscale raster. A raster with no
// detectable texture yields an empty set and ErrNoFeatures.
func (e *Extractor) Extract(img *image.Gray) (DescriptorSet, error) {
	keypoints := e.detect(img)
	if len(keypoints) == 0 {
		return nil, ErrNoFeatures
	}

	smoothed := boxSmooth(img)
	descriptors := make(DescriptorSet, 0, len(keypoints))
	for _, kp := range keypoints {
		descriptors = append(descriptors, describe(smoothed, img.Bounds().Dx(), kp))
	}
	return descriptors, nil
}

// detect runs the FAST segment test, suppresses non-maxima in a 3x3
// neighborhood, and keeps the strongest corners up to the configured cap.
func (e *Extractor) detect(img *image.Gray) []Keypoint {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 2*patchMargin || height <= 2*patchMargin {
		return nil
	}

	scores := make([]int, width*height)
	for y := patchMargin; y < height-patchMargin; y++ {
		for x := patchMargin; x < width-patchMargin; x++ {
			if s := segmentScore(img, x, y); s > 0 {
				scores[y*width+x] = s
			}
		}
	}

	var keypoints []Keypoint
	for y := patchMargin; y < height-patchMargin; y++ {
		for x := patchMargin; x < width-patchMargin; x++ {
			s := scores[y*width+x]
			if s == 0 || !isLocalMax(scores, width, x, y) {
				continue
			}
			keypoints = append(keypoints, Keypoint{X: x, Y: y, Score: s})
		}
	}

	// Strongest first; coordinates break score ties so ordering is stable.
	sort.Slice(keypoints, func(i, j int) bool {
		if keypoints[i].Score != keypoints[j].Score {
			return keypoints[i].Score > keypoints[j].Score
		}
		if keypoints[i].Y != keypoints[j].Y {
			return keypoints[i].Y < keypoints[j].Y
		}
		return keypoints[i].X < keypoints[j].X
	})

	if len(keypoints) > e.maxKeypoints {
		keypoints = keypoints[:e.maxKeypoints]
	}
	return keypoints
}

// segmentScore returns a positive contrast score when at least fastArc
// contiguous ring pixels are all brighter or all darker than the center by
// fastThreshold, zero otherwise. Coordinates are raster-relative; the raster
// origin need not be (0, 0).
func segmentScore(img *image.Gray, x, y int) int {
	origin := img.Bounds().Min
	center := int(img.GrayAt(origin.X+x, origin.Y+y).Y)

	var brighter, darker [16]bool
	var diffs [16]int
	for i, off := range ring3 {
		v := int(img.GrayAt(origin.X+x+off[0], origin.Y+y+off[1]).Y)
		diffs[i] = v - center
		brighter[i] = diffs[i] >= fastThreshold
		darker[i] = -diffs[i] >= fastThreshold
	}

	score := 0
	if run := maxCircularRun(brighter); run >= fastArc {
		for i := range diffs {
			if brighter[i] {
				score += diffs[i]
			}
		}
	}
	if run := maxCircularRun(darker); run >= fastArc {
		dark := 0
		for i := range diffs {
			if darker[i] {
				dark -= diffs[i]
			}
		}
		if dark > score {
			score = dark
		}
	}
	return score
}

// maxCircularRun returns the longest run of true values on the circular ring.
func maxCircularRun(flags [16]bool) int {
	best, run := 0, 0
	// Walk the ring twice to catch runs that wrap around.
	for i := range 32 {
		if flags[i%16] {
			run++
			if run > best {
				best = run
			}
			if best >= 16 {
				return 16
			}
		} else {
			run = 0
		}
	}
	return best
}

// isLocalMax reports whether the score at (x, y) dominates its 3x3 neighborhood.
func isLocalMax(scores []int, width, x, y int) bool {
	s := scores[y*width+x]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := scores[(y+dy)*width+(x+dx)]
			if n > s {
				return false
			}
			// Equal plateaus resolve to the top-left pixel.
			if n == s && (dy < 0 || (dy == 0 && dx < 0)) {
				return false
			}
		}
	}
	return true
}

// boxSmooth computes a 5x5 box mean per pixel via an integral image. The
// smoothing makes the point comparisons tolerant to pixel-level noise.
func boxSmooth(img *image.Gray) []uint8 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	integral := make([]int, (width+1)*(height+1))
	stride := width + 1
	for y := range height {
		rowSum := 0
		for x := range width {
			rowSum += int(img.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			integral[(y+1)*stride+x+1] = integral[y*stride+x+1] + rowSum
		}
	}

	smoothed := make([]uint8, width*height)
	for y := range height {
		for x := range width {
			x0, y0 := max(x-2, 0), max(y-2, 0)
			x1, y1 := min(x+3, width), min(y+3, height)
			area := (x1 - x0) * (y1 - y0)
			sum := integral[y1*stride+x1] - integral[y0*stride+x1] -
				integral[y1*stride+x0] + integral[y0*stride+x0]
			smoothed[y*width+x] = uint8(sum / area)
		}
	}
	return smoothed
}

// describe builds the 256-bit descriptor for one keypoint by comparing
// smoothed intensities at the fixed pattern's point pairs.
func describe(smoothed []uint8, width int, kp Keypoint) Descriptor {
	var d Descriptor
	for i, p := range pattern {
		a := smoothed[(kp.Y+p[1])*width+kp.X+p[0]]
		b := smoothed[(kp.Y+p[3])*width+kp.X+p[2]]
		if a < b {
			d[i/8] |= 1 << (i % 8)
		}
	}
	return d
}
