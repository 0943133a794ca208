// pkg/browser/coords.go
package browser

import "github.com/xkilldash9x/glimpse-cli/pkg/observe"

// viewportPoint maps the center of a screenshot-space box to CSS-pixel
// viewport coordinates. Detection boxes live in screenshot pixels, which are
// viewport pixels multiplied by the device scale factor; input events take
// CSS pixels.
func viewportPoint(box observe.Box, screenshotW, screenshotH int, vp observe.Viewport) (x, y float64) {
	scaleX := float64(vp.Width) / float64(screenshotW)
	scaleY := float64(vp.Height) / float64(screenshotH)
	return box.CenterX() * scaleX, box.CenterY() * scaleY
}
