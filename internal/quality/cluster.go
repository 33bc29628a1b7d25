package quality

// gridCoord is an over-threshold sample position in sample-grid space
// (ROI-relative, divided by the sampling stride), so immediate neighbours
// differ by one in each axis regardless of stride.
type gridCoord struct {
	x int
	y int
}

// clusterStats labels the 8-connected components of the coordinate set and
// returns the component count and the size of the largest one. A handful of
// small components is a specular highlight pattern; one large component is a
// blown-out region.
//
// The working set is consumed: visited coordinates are removed as the
// stack-based flood fill expands each component.
func clusterStats(coords map[gridCoord]struct{}) (count, largest int) {
	if len(coords) == 0 {
		return 0, 0
	}

	stack := make([]gridCoord, 0, len(coords))
	for len(coords) > 0 {
		var seed gridCoord
		for c := range coords {
			seed = c
			break
		}
		delete(coords, seed)
		stack = append(stack[:0], seed)

		size := 0
		for len(stack) > 0 {
			c := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			size++

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					n := gridCoord{x: c.x + dx, y: c.y + dy}
					if _, ok := coords[n]; ok {
						delete(coords, n)
						stack = append(stack, n)
					}
				}
			}
		}

		count++
		if size > largest {
			largest = size
		}
	}
	return count, largest
}
