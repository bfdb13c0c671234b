// Package stereo implements semi-global block matching on rectified
// grayscale stereo pairs, producing sub-pixel disparity maps.
package stereo

import (
	"math"

	"github.com/pkg/errors"

	"github.com/edgescope/depthfusion/rimage"
)

// ModeThreeWay aggregates matching costs along both horizontal directions
// and downward, the usual speed/quality tradeoff on embedded hardware.
const ModeThreeWay = 0

// Params configures the semi-global matcher.
type Params struct {
	MinDisparity      int
	NumDisparities    int // must be divisible by 16
	BlockSize         int // odd
	P1                int // small disparity-change penalty; 0 derives 8*BlockSize^2
	P2                int // large disparity-change penalty; 0 derives 32*BlockSize^2
	Disp12MaxDiff     int // left-right consistency tolerance in pixels; <0 disables
	UniquenessRatio   int // percent margin the winner must have
	SpeckleWindowSize int
	SpeckleRange      int // in pixels
	PreFilterCap      int
	Mode              int
}

// DefaultParams returns the tuned production parameters.
func DefaultParams() Params {
	return Params{
		MinDisparity:      0,
		NumDisparities:    128,
		BlockSize:         5,
		Disp12MaxDiff:     1,
		UniquenessRatio:   15,
		SpeckleWindowSize: 150,
		SpeckleRange:      32,
		PreFilterCap:      63,
		Mode:              ModeThreeWay,
	}
}

// Validate checks the parameter set, deriving the smoothness penalties when
// they are unset.
func (p *Params) Validate() error {
	if p.NumDisparities <= 0 || p.NumDisparities%16 != 0 {
		return errors.Errorf("num_disparities must be a positive multiple of 16, got %d", p.NumDisparities)
	}
	if p.BlockSize < 1 || p.BlockSize%2 == 0 {
		return errors.Errorf("block_size must be a positive odd number, got %d", p.BlockSize)
	}
	if p.PreFilterCap <= 0 {
		return errors.Errorf("prefilter_cap must be positive, got %d", p.PreFilterCap)
	}
	if p.P1 == 0 {
		p.P1 = 8 * p.BlockSize * p.BlockSize
	}
	if p.P2 == 0 {
		p.P2 = 32 * p.BlockSize * p.BlockSize
	}
	if p.P2 <= p.P1 {
		return errors.Errorf("P2 (%d) must exceed P1 (%d)", p.P2, p.P1)
	}
	if p.Mode != ModeThreeWay {
		return errors.Errorf("unsupported matcher mode %d", p.Mode)
	}
	return nil
}

// Matcher computes disparities with the configured parameters. A Matcher is
// intended to be owned by a single worker; Compute is not safe for
// concurrent use because scratch buffers are reused between frames.
type Matcher struct {
	params Params

	width, height int
	costRows      [][]int32 // ring of per-row pixel costs for block aggregation
	costRowIdx    []int     // which source row each ring slot holds
	aggRow        []int32   // block-aggregated costs of the current row
	lrFwd, lrBwd  []int32   // horizontal path buffers
	vertPrev      []int32   // downward path, previous row
	vertCur       []int32
	sum           []int32
}

// NewMatcher validates the parameters and returns a matcher.
func NewMatcher(params Params) (*Matcher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Matcher{params: params}, nil
}

// Params returns a copy of the matcher's (validated) parameters.
func (m *Matcher) Params() Params {
	return m.params
}

const maxPixelCost = 1 << 12

// Compute matches the rectified pair and returns sub-pixel disparity in
// pixels as float32. Pixels without a reliable match are 0.
func (m *Matcher) Compute(left, right *rimage.GrayImage) (*rimage.FloatMap, error) {
	if left == nil || right == nil {
		return nil, errors.New("empty input images")
	}
	if left.Width() != right.Width() || left.Height() != right.Height() {
		return nil, errors.Errorf("input sizes mismatch: %dx%d vs %dx%d",
			left.Width(), left.Height(), right.Width(), right.Height())
	}
	w, h := left.Width(), left.Height()
	numD := m.params.NumDisparities
	if w < m.params.BlockSize+numD {
		return nil, errors.Errorf("image width %d too small for %d disparities", w, numD)
	}
	m.ensureBuffers(w, h)

	gradL := rimage.SobelRowGradient(left, m.params.PreFilterCap)
	gradR := rimage.SobelRowGradient(right, m.params.PreFilterCap)

	// raw16 carries disparity in 16ths of a pixel, negative where invalid
	raw16 := make([]int32, w*h)
	for i := range raw16 {
		raw16[i] = -1
	}

	m.resetPaths()
	for y := 0; y < h; y++ {
		m.aggregateRow(gradL, gradR, y, y == 0)
		m.decideRow(m.sum, raw16, y, w)
	}

	filterSpeckles(raw16, w, h, m.params.SpeckleWindowSize, m.params.SpeckleRange*16)

	out := rimage.NewFloatMap(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r := raw16[y*w+x]
			if r > 0 {
				out.SetXY(x, y, float32(r)/16.0)
			}
		}
	}
	return out, nil
}

func (m *Matcher) ensureBuffers(w, h int) {
	numD := m.params.NumDisparities
	if m.width == w && m.height == h && m.costRows != nil {
		return
	}
	m.width, m.height = w, h
	m.costRows = make([][]int32, m.params.BlockSize)
	m.costRowIdx = make([]int, m.params.BlockSize)
	for i := range m.costRows {
		m.costRows[i] = make([]int32, w*numD)
		m.costRowIdx[i] = -1
	}
	m.aggRow = make([]int32, w*numD)
	m.lrFwd = make([]int32, w*numD)
	m.lrBwd = make([]int32, w*numD)
	m.vertPrev = make([]int32, w*numD)
	m.vertCur = make([]int32, w*numD)
	m.sum = make([]int32, w*numD)
}

func (m *Matcher) resetPaths() {
	for i := range m.vertPrev {
		m.vertPrev[i] = 0
	}
	for i := range m.costRowIdx {
		m.costRowIdx[i] = -1
	}
}

// pixelCost is the Birchfield-Tomasi dissimilarity on the prefiltered
// gradient images, robust to half-pixel sampling differences.
func pixelCost(gradL, gradR *rimage.FloatMap, x, xr, y int) int32 {
	vl := float64(gradL.GetXY(x, y))
	vr := float64(gradR.GetXY(xr, y))
	vrm, vrp := vr, vr
	if xr > 0 {
		vrm = (vr + float64(gradR.GetXY(xr-1, y))) / 2
	}
	if xr < gradR.Width()-1 {
		vrp = (vr + float64(gradR.GetXY(xr+1, y))) / 2
	}
	lo := math.Min(vr, math.Min(vrm, vrp))
	hi := math.Max(vr, math.Max(vrm, vrp))
	d := 0.0
	if vl < lo {
		d = lo - vl
	} else if vl > hi {
		d = vl - hi
	}
	if d > maxPixelCost {
		d = maxPixelCost
	}
	return int32(d)
}

// aggregateRow computes block costs for row y and runs the path recurrences,
// leaving per-disparity sums for the row in m.sum.
func (m *Matcher) aggregateRow(gradL, gradR *rimage.FloatMap, y int, firstRow bool) {
	w := m.width
	numD := m.params.NumDisparities
	half := m.params.BlockSize / 2

	// fill the cost ring for all rows the block around y touches
	for dy := -half; dy <= half; dy++ {
		ry := y + dy
		if ry < 0 {
			ry = 0
		}
		if ry >= m.height {
			ry = m.height - 1
		}
		slot := ry % m.params.BlockSize
		if m.costRowIdx[slot] != ry {
			m.fillCostRow(gradL, gradR, ry, m.costRows[slot])
			m.costRowIdx[slot] = ry
		}
	}

	// horizontal box sum over the block for each disparity
	for x := 0; x < w; x++ {
		for d := 0; d < numD; d++ {
			var sum int32
			for dy := -half; dy <= half; dy++ {
				ry := y + dy
				if ry < 0 {
					ry = 0
				}
				if ry >= m.height {
					ry = m.height - 1
				}
				row := m.costRows[ry%m.params.BlockSize]
				for dx := -half; dx <= half; dx++ {
					px := x + dx
					if px < 0 {
						px = 0
					}
					if px >= w {
						px = w - 1
					}
					sum += row[px*numD+d]
				}
			}
			m.aggRow[x*numD+d] = sum
		}
	}

	p1 := int32(m.params.P1)
	p2 := int32(m.params.P2)

	// left to right
	aggregatePath(m.lrFwd, m.aggRow, w, numD, +1, p1, p2)
	// right to left
	aggregatePath(m.lrBwd, m.aggRow, w, numD, -1, p1, p2)
	// downward: recurrence against the previous row at the same column
	for x := 0; x < w; x++ {
		off := x * numD
		prev := m.vertPrev[off : off+numD]
		cur := m.vertCur[off : off+numD]
		stepPath(cur, prev, m.aggRow[off:off+numD], p1, p2, firstRow)
	}
	m.vertPrev, m.vertCur = m.vertCur, m.vertPrev

	for i := 0; i < w*numD; i++ {
		m.sum[i] = m.lrFwd[i] + m.lrBwd[i] + m.vertPrev[i]
	}
}

func (m *Matcher) fillCostRow(gradL, gradR *rimage.FloatMap, y int, out []int32) {
	w := m.width
	numD := m.params.NumDisparities
	minD := m.params.MinDisparity
	for x := 0; x < w; x++ {
		for d := 0; d < numD; d++ {
			xr := x - (minD + d)
			if xr < 0 {
				out[x*numD+d] = maxPixelCost
				continue
			}
			out[x*numD+d] = pixelCost(gradL, gradR, x, xr, y)
		}
	}
}

// aggregatePath runs the 1D semi-global recurrence along a row.
func aggregatePath(dst, cost []int32, w, numD int, dir int, p1, p2 int32) {
	start, end := 0, w
	if dir < 0 {
		start, end = w-1, -1
	}
	first := true
	var prevOff int
	for x := start; x != end; x += dir {
		off := x * numD
		stepPath(dst[off:off+numD], dst[prevOff:prevOff+numD], cost[off:off+numD], p1, p2, first)
		prevOff = off
		first = false
	}
}

// stepPath applies L(p,d) = C(p,d) + min(L', L'±1 + P1, minL' + P2) - minL'.
func stepPath(dst, prev, cost []int32, p1, p2 int32, first bool) {
	numD := len(cost)
	if first {
		copy(dst, cost)
		return
	}
	minPrev := prev[0]
	for _, v := range prev[1:] {
		if v < minPrev {
			minPrev = v
		}
	}
	for d := 0; d < numD; d++ {
		best := prev[d]
		if d > 0 && prev[d-1]+p1 < best {
			best = prev[d-1] + p1
		}
		if d < numD-1 && prev[d+1]+p1 < best {
			best = prev[d+1] + p1
		}
		if minPrev+p2 < best {
			best = minPrev + p2
		}
		dst[d] = cost[d] + best - minPrev
	}
}

// decideRow picks winners, applies uniqueness, sub-pixel interpolation and
// the left-right consistency check, writing 16ths-of-a-pixel disparities.
func (m *Matcher) decideRow(sums, raw16 []int32, y, w int) {
	numD := m.params.NumDisparities
	minD := m.params.MinDisparity

	// best disparity seen from the right image: for right pixel xr the
	// candidates are left pixels xr+d at disparity d
	rightBest := make([]int32, w)
	rightDisp := make([]int32, w)
	for i := range rightBest {
		rightBest[i] = math.MaxInt32
		rightDisp[i] = -1
	}
	for x := 0; x < w; x++ {
		for d := 0; d < numD; d++ {
			xr := x - (minD + d)
			if xr < 0 {
				continue
			}
			s := sums[x*numD+d]
			if s < rightBest[xr] {
				rightBest[xr] = s
				rightDisp[xr] = int32(minD + d)
			}
		}
	}

	for x := 0; x < w; x++ {
		s := sums[x*numD : (x+1)*numD]
		bestD := 0
		for d := 1; d < numD; d++ {
			if s[d] < s[bestD] {
				bestD = d
			}
		}
		// the whole search range must fit to the left of the pixel
		if x-(minD+numD-1) < 0 {
			continue
		}

		if m.params.UniquenessRatio > 0 {
			unique := true
			limit := int64(s[bestD]) * int64(100+m.params.UniquenessRatio) / 100
			for d := 0; d < numD; d++ {
				if d == bestD || d == bestD-1 || d == bestD+1 {
					continue
				}
				if int64(s[d]) <= limit {
					unique = false
					break
				}
			}
			if !unique {
				continue
			}
		}

		if m.params.Disp12MaxDiff >= 0 {
			xr := x - (minD + bestD)
			if xr >= 0 && rightDisp[xr] >= 0 {
				if int(math.Abs(float64(rightDisp[xr]-int32(minD+bestD)))) > m.params.Disp12MaxDiff {
					continue
				}
			}
		}

		// parabolic sub-pixel refinement
		d16 := int32(minD+bestD) * 16
		if bestD > 0 && bestD < numD-1 {
			denom := s[bestD-1] + s[bestD+1] - 2*s[bestD]
			if denom > 0 {
				num := s[bestD-1] - s[bestD+1]
				d16 += int32(math.Round(float64(num) * 8 / float64(denom)))
			}
		}
		if d16 > 0 {
			raw16[y*w+x] = d16
		}
	}
}
