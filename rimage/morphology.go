package rimage

import "image"

// Mask is a dense binary plane stored row-major.
type Mask struct {
	data          []bool
	width, height int
}

// NewMask returns an all-false mask of the given dimensions.
func NewMask(width, height int) *Mask {
	return &Mask{
		data:   make([]bool, width*height),
		width:  width,
		height: height,
	}
}

func (m *Mask) kxy(x, y int) int {
	return (y * m.width) + x
}

// In returns whether the point is in the mask's bounds.
func (m *Mask) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < m.width && y < m.height
}

// Width returns the horizontal dimension of the mask.
func (m *Mask) Width() int {
	return m.width
}

// Height returns the vertical dimension of the mask.
func (m *Mask) Height() int {
	return m.height
}

// GetXY returns whether (x, y) is set.
func (m *Mask) GetXY(x, y int) bool {
	return m.data[m.kxy(x, y)]
}

// SetXY sets (x, y) to the given value.
func (m *Mask) SetXY(x, y int, v bool) {
	m.data[m.kxy(x, y)] = v
}

// Count returns the number of set pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.data {
		if v {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the mask.
func (m *Mask) Clone() *Mask {
	out := NewMask(m.width, m.height)
	copy(out.data, m.data)
	return out
}

// Dilate grows set regions by a square structuring element of the given radius.
func (m *Mask) Dilate(radius int) *Mask {
	out := NewMask(m.width, m.height)
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			if !m.GetXY(x, y) {
				continue
			}
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					if m.In(x+dx, y+dy) {
						out.SetXY(x+dx, y+dy, true)
					}
				}
			}
		}
	}
	return out
}

// Erode shrinks set regions by a square structuring element of the given radius.
func (m *Mask) Erode(radius int) *Mask {
	out := NewMask(m.width, m.height)
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			keep := true
			for dy := -radius; dy <= radius && keep; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					px, py := x+dx, y+dy
					if !m.In(px, py) || !m.GetXY(px, py) {
						keep = false
						break
					}
				}
			}
			if keep {
				out.SetXY(x, y, true)
			}
		}
	}
	return out
}

// Close performs a morphological closing (dilate then erode) which fills
// small gaps without growing the overall region.
func (m *Mask) Close(radius int) *Mask {
	return m.Dilate(radius).Erode(radius)
}

// ConnectedComponent is one 8-connected region of a mask.
type ConnectedComponent struct {
	Label  int
	Area   int
	Pixels []image.Point
}

// ConnectedComponents labels all 8-connected regions of set pixels and
// returns them largest first.
func (m *Mask) ConnectedComponents() []ConnectedComponent {
	labels := make([]int, len(m.data))
	var comps []ConnectedComponent
	next := 1

	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			k := m.kxy(x, y)
			if !m.data[k] || labels[k] != 0 {
				continue
			}
			comp := ConnectedComponent{Label: next}
			stack := []image.Point{{x, y}}
			labels[k] = next
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				comp.Pixels = append(comp.Pixels, p)
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if dx == 0 && dy == 0 {
							continue
						}
						nx, ny := p.X+dx, p.Y+dy
						if !m.In(nx, ny) {
							continue
						}
						nk := m.kxy(nx, ny)
						if m.data[nk] && labels[nk] == 0 {
							labels[nk] = next
							stack = append(stack, image.Point{nx, ny})
						}
					}
				}
			}
			comp.Area = len(comp.Pixels)
			comps = append(comps, comp)
			next++
		}
	}

	for i := 1; i < len(comps); i++ {
		for j := i; j > 0 && comps[j].Area > comps[j-1].Area; j-- {
			comps[j], comps[j-1] = comps[j-1], comps[j]
		}
	}
	return comps
}

// MaskOf returns the component's pixels as a standalone mask of the given
// dimensions.
func (cc *ConnectedComponent) MaskOf(width, height int) *Mask {
	out := NewMask(width, height)
	for _, p := range cc.Pixels {
		out.SetXY(p.X, p.Y, true)
	}
	return out
}
