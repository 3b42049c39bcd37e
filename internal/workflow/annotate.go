package workflow

// Viewport is the bounding box of the rendered drawing image, in the same
// pixel space as pointer events.
type Viewport struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// Percent converts a click to percentage coordinates relative to the box, so
// stored points stay valid when the image is rendered at another size.
func (v Viewport) Percent(clickX, clickY float64) (x, y float64, err error) {
	if v.Width <= 0 || v.Height <= 0 {
		return 0, 0, ErrOutsideViewport
	}
	x = (clickX - v.Left) / v.Width * 100
	y = (clickY - v.Top) / v.Height * 100
	if x < 0 || x > 100 || y < 0 || y > 100 {
		return 0, 0, ErrOutsideViewport
	}
	return x, y, nil
}

// Pixel maps stored percentage coordinates back into the box.
func (v Viewport) Pixel(x, y float64) (px, py float64) {
	return v.Left + x/100*v.Width, v.Top + y/100*v.Height
}
