package heatmap

import "sort"

const (
	// DefaultZoneCount is how many zones are reported per tick.
	DefaultZoneCount = 3
	// DefaultZoneThreshold is the fraction of the field maximum a pixel must
	// exceed to belong to a zone.
	DefaultZoneThreshold = 0.6
)

// Zone is a ranked cluster of high activity density.
type Zone struct {
	Rank        int     `json:"rank"`
	X           int     `json:"x"`
	Y           int     `json:"y"`
	PeakDensity float64 `json:"peak_density"`
}

// ZoneExtractor finds the dominant density clusters in a field.
type ZoneExtractor struct {
	// Threshold is the fraction of the field maximum above which a pixel is
	// considered hot.
	Threshold float64
	// MinPixels discards components smaller than this many pixels. Zero
	// keeps every component with non-zero mass.
	MinPixels int
}

// ExtractZones runs the default extractor.
func ExtractZones(field *DensityField, count int) []Zone {
	return ZoneExtractor{Threshold: DefaultZoneThreshold}.Extract(field, count)
}

// Extract thresholds the field, fills holes so only outer blobs remain,
// labels 8-connected blobs, and ranks their centroids by the density found
// at the centroid pixel. Ties keep discovery (row-major) order. At most
// count zones are returned; an all-zero field yields none.
func (e ZoneExtractor) Extract(field *DensityField, count int) []Zone {
	if field == nil || count <= 0 {
		return nil
	}
	peak := field.Max()
	if peak <= 0 {
		return nil
	}

	mask := fillHoles(threshold(field, e.Threshold*peak), field.Width, field.Height)
	blobs := labelBlobs(mask, field.Width, field.Height)

	zones := make([]Zone, 0, len(blobs))
	for _, b := range blobs {
		if b.m00 == 0 || b.m00 < e.MinPixels {
			continue
		}
		cx := int(float64(b.m10) / float64(b.m00))
		cy := int(float64(b.m01) / float64(b.m00))
		zones = append(zones, Zone{X: cx, Y: cy, PeakDensity: field.At(cx, cy)})
	}

	sort.SliceStable(zones, func(i, j int) bool {
		return zones[i].PeakDensity > zones[j].PeakDensity
	})
	if len(zones) > count {
		zones = zones[:count]
	}
	for i := range zones {
		zones[i].Rank = i + 1
	}
	return zones
}

// threshold marks pixels strictly above level.
func threshold(field *DensityField, level float64) []bool {
	mask := make([]bool, len(field.Values))
	for i, v := range field.Values {
		mask[i] = v > level
	}
	return mask
}

// fillHoles returns mask with every enclosed background region set. Only
// background 4-connected to the border survives, which is the complement of
// 8-connected foreground outlines.
func fillHoles(mask []bool, w, h int) []bool {
	outside := make([]bool, len(mask))
	queue := make([]int, 0, 2*(w+h))

	seed := func(x, y int) {
		i := y*w + x
		if !mask[i] && !outside[i] {
			outside[i] = true
			queue = append(queue, i)
		}
	}
	for x := 0; x < w; x++ {
		seed(x, 0)
		seed(x, h-1)
	}
	for y := 0; y < h; y++ {
		seed(0, y)
		seed(w-1, y)
	}

	for j := 0; j < len(queue); j++ {
		x, y := queue[j]%w, queue[j]/w
		if x > 0 {
			seed(x-1, y)
		}
		if x < w-1 {
			seed(x+1, y)
		}
		if y > 0 {
			seed(x, y-1)
		}
		if y < h-1 {
			seed(x, y+1)
		}
	}

	filled := make([]bool, len(mask))
	for i := range filled {
		filled[i] = !outside[i]
	}
	return filled
}

// blob accumulates raw image moments for one connected component.
type blob struct {
	m00, m10, m01 int
}

// labelBlobs collects 8-connected components in row-major discovery order.
func labelBlobs(mask []bool, w, h int) []blob {
	visited := make([]bool, len(mask))
	var blobs []blob
	var queue []int

	for start := range mask {
		if !mask[start] || visited[start] {
			continue
		}

		var b blob
		visited[start] = true
		queue = append(queue[:0], start)
		for j := 0; j < len(queue); j++ {
			idx := queue[j]
			x, y := idx%w, idx/w
			b.m00++
			b.m10 += x
			b.m01 += y

			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if (dx == 0 && dy == 0) || nx < 0 || nx >= w {
						continue
					}
					n := ny*w + nx
					if mask[n] && !visited[n] {
						visited[n] = true
						queue = append(queue, n)
					}
				}
			}
		}
		blobs = append(blobs, b)
	}
	return blobs
}
