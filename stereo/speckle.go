package stereo

// filterSpeckles invalidates small connected blobs of similar disparity,
// the classic post-filter for mismatches on low-texture regions. raw16 holds
// disparities in 16ths of a pixel with negative meaning invalid; maxDiff16
// is the largest step (same units) that keeps two 4-neighbors connected.
func filterSpeckles(raw16 []int32, w, h, minRegionArea, maxDiff16 int) {
	if minRegionArea <= 0 {
		return
	}
	labels := make([]int32, len(raw16))
	stack := make([]int, 0, 1024)
	region := make([]int, 0, 1024)
	var nextLabel int32 = 1

	for start := range raw16 {
		if raw16[start] < 0 || labels[start] != 0 {
			continue
		}
		label := nextLabel
		nextLabel++
		stack = append(stack[:0], start)
		region = append(region[:0], start)
		labels[start] = label
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := p%w, p/w
			for _, n := range [4]int{p - 1, p + 1, p - w, p + w} {
				switch n {
				case p - 1:
					if x == 0 {
						continue
					}
				case p + 1:
					if x == w-1 {
						continue
					}
				case p - w:
					if y == 0 {
						continue
					}
				case p + w:
					if y == h-1 {
						continue
					}
				}
				if raw16[n] < 0 || labels[n] != 0 {
					continue
				}
				diff := raw16[n] - raw16[p]
				if diff < 0 {
					diff = -diff
				}
				if int(diff) > maxDiff16 {
					continue
				}
				labels[n] = label
				stack = append(stack, n)
				region = append(region, n)
			}
		}
		if len(region) < minRegionArea {
			for _, p := range region {
				raw16[p] = -1
			}
		}
	}
}
