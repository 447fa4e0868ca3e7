package image

const (
	DefaultRegionMinSize       = 1
	DefaultRegionMergeDistance = 10
)

type Rectangle struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type point struct {
	x int
	y int
}

// Regions returns bounding boxes of 8-connected clusters of mismatching
// pixels. Boxes narrower or shorter than minSize are dropped; boxes that
// overlap or lie within mergeDistance pixels of each other are combined.
func (r *Result) Regions(minSize int, mergeDistance int) []Rectangle {
	if r.Mismatched == 0 || len(r.mismatch) != r.Width*r.Height {
		return []Rectangle{}
	}

	visited := make([]bool, len(r.mismatch))

	rectangles := []Rectangle{}
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			i := y*r.Width + x
			if r.mismatch[i] && !visited[i] {
				rect := r.findBoundingBox(visited, x, y)
				if rect.Width >= minSize && rect.Height >= minSize {
					rectangles = append(rectangles, rect)
				}
			}
		}
	}

	return mergeRectangles(rectangles, mergeDistance)
}

func (r *Result) findBoundingBox(visited []bool, startX int, startY int) Rectangle {
	minX := startX
	minY := startY
	maxX := startX
	maxY := startY

	queue := []point{{startX, startY}}
	visited[startY*r.Width+startX] = true

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		minX = min(minX, p.x)
		maxX = max(maxX, p.x)
		minY = min(minY, p.y)
		maxY = max(maxY, p.y)

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}

				nx := p.x + dx
				ny := p.y + dy
				if nx < 0 || nx >= r.Width || ny < 0 || ny >= r.Height {
					continue
				}
				i := ny*r.Width + nx
				if r.mismatch[i] && !visited[i] {
					visited[i] = true
					queue = append(queue, point{nx, ny})
				}
			}
		}
	}

	return Rectangle{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX + 1,
		Height: maxY - minY + 1,
	}
}

func mergeRectangles(rects []Rectangle, distance int) []Rectangle {
	if len(rects) <= 1 {
		return rects
	}

	merged := make([]Rectangle, 0, len(rects))
	used := make([]bool, len(rects))

	for i := 0; i < len(rects); i++ {
		if used[i] {
			continue
		}

		current := rects[i]
		mergedAny := true

		for mergedAny {
			mergedAny = false
			for j := i + 1; j < len(rects); j++ {
				if used[j] {
					continue
				}

				if rectanglesOverlap(current, rects[j]) || rectanglesClose(current, rects[j], distance) {
					current = combineRectangles(current, rects[j])
					used[j] = true
					mergedAny = true
				}
			}
		}

		merged = append(merged, current)
	}

	return merged
}

func rectanglesOverlap(r1 Rectangle, r2 Rectangle) bool {
	return !(r1.X+r1.Width <= r2.X || r2.X+r2.Width <= r1.X ||
		r1.Y+r1.Height <= r2.Y || r2.Y+r2.Height <= r1.Y)
}

func rectanglesClose(r1 Rectangle, r2 Rectangle, threshold int) bool {
	if threshold <= 0 {
		return false
	}
	return rectanglesOverlap(expand(r1, threshold), expand(r2, threshold))
}

func expand(r Rectangle, by int) Rectangle {
	return Rectangle{
		X:      r.X - by,
		Y:      r.Y - by,
		Width:  r.Width + 2*by,
		Height: r.Height + 2*by,
	}
}

func combineRectangles(r1 Rectangle, r2 Rectangle) Rectangle {
	minX := min(r1.X, r2.X)
	minY := min(r1.Y, r2.Y)
	maxX := max(r1.X+r1.Width, r2.X+r2.Width)
	maxY := max(r1.Y+r1.Height, r2.Y+r2.Height)

	return Rectangle{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX,
		Height: maxY - minY,
	}
}
