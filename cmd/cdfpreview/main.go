// CDF preview tool - steps a scene headlessly and writes an axis-aligned slice
// of the gathered particle CDF to a PNG file.
//
// Usage: go run ./cmd/cdfpreview -config scene.yaml -steps 30 -axis z -at 0 -out slice.png
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sandmpm/cdf"
	"github.com/pthm-cable/sandmpm/config"
	"github.com/pthm-cable/sandmpm/grid"
	"github.com/pthm-cable/sandmpm/sim"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	steps := flag.Int("steps", 1, "Steps to run before sampling")
	axis := flag.String("axis", "z", "Slice normal axis (x, y or z)")
	at := flag.Float64("at", 0, "World coordinate of the slice along the axis")
	pixelsPerCell := flag.Int("ppc", 4, "Pixels per grid cell")
	falloff := flag.Float64("falloff", 1, "Distance (m) over which shading fades out")
	outPath := flag.String("out", "cdf.png", "Output PNG path")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := config.Init(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	w, err := sim.New(config.Cfg(), sim.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create world: %v\n", err)
		os.Exit(1)
	}
	defer w.Close()

	for i := 0; i < *steps; i++ {
		if _, err := w.Step(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Step %d failed: %v\n", i+1, err)
			os.Exit(1)
		}
	}

	plane, err := newSlice(w.Grid(), *axis, *at, *pixelsPerCell)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	img := plane.render(w.Grid(), *falloff)

	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		fmt.Fprintf(os.Stderr, "Failed to encode PNG: %v\n", err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %dx%d slice to %s\n", img.Bounds().Dx(), img.Bounds().Dy(), *outPath)
}

// slice maps pixel coordinates onto a world-space plane through the grid.
type slice struct {
	origin r3.Vec // world position of pixel (0, 0)
	du, dv r3.Vec // world step per pixel along the image axes
	width  int
	height int
}

func newSlice(g *grid.Grid, axis string, at float64, ppc int) (slice, error) {
	if ppc <= 0 {
		return slice{}, fmt.Errorf("pixels per cell must be positive, got %d", ppc)
	}
	dims := g.Dims()
	origin := g.NodePosition(0, 0, 0)
	step := g.Spacing() / float64(ppc)
	px := func(n int) int { return (n - 1) * ppc }

	s := slice{origin: origin}
	switch axis {
	case "x":
		s.origin.X = at
		s.du = r3.Vec{Z: step}
		s.dv = r3.Vec{Y: step}
		s.width, s.height = px(dims[2]), px(dims[1])
	case "y":
		s.origin.Y = at
		s.du = r3.Vec{X: step}
		s.dv = r3.Vec{Z: step}
		s.width, s.height = px(dims[0]), px(dims[2])
	case "z":
		s.origin.Z = at
		s.du = r3.Vec{X: step}
		s.dv = r3.Vec{Y: step}
		s.width, s.height = px(dims[0]), px(dims[1])
	default:
		return slice{}, fmt.Errorf("unknown axis %q", axis)
	}
	if s.width <= 0 || s.height <= 0 {
		return slice{}, fmt.Errorf("grid too small to slice along %s", axis)
	}
	return s, nil
}

// point returns the world position of the centre of pixel (x, y). Image rows
// grow downwards, so v runs from the top edge.
func (s slice) point(x, y int) r3.Vec {
	u := float64(x) + 0.5
	v := float64(s.height-1-y) + 0.5
	return r3.Add(s.origin, r3.Add(r3.Scale(u, s.du), r3.Scale(v, s.dv)))
}

func (s slice) render(g *grid.Grid, falloff float64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			img.SetRGBA(x, y, shade(g.GatherOne(s.point(x, y)), falloff))
		}
	}
	return img
}

var background = color.RGBA{R: 10, G: 20, B: 60, A: 255}

// palette holds one hue per collider index.
var palette = [cdf.MaxColliders]color.RGBA{
	{R: 230, G: 160, B: 50}, {R: 60, G: 200, B: 200}, {R: 200, G: 80, B: 200}, {R: 120, G: 220, B: 80},
	{R: 240, G: 90, B: 70}, {R: 90, G: 120, B: 240}, {R: 240, G: 220, B: 90}, {R: 160, G: 110, B: 60},
	{R: 250, G: 150, B: 190}, {R: 100, G: 170, B: 110}, {R: 180, G: 180, B: 250}, {R: 200, G: 200, B: 200},
	{R: 140, G: 60, B: 60}, {R: 60, G: 100, B: 140}, {R: 160, G: 200, B: 40}, {R: 250, G: 250, B: 250},
}

// shade colours a gathered sample: untouched regions get the background, the
// rest the dominant collider's hue fading with distance, darkened when the
// sample is classified inside.
func shade(p cdf.ParticleCdf, falloff float64) color.RGBA {
	if !p.Touched() || falloff <= 0 {
		return background
	}
	base := palette[p.Collider]
	t := 1 - clamp01(math.Abs(p.SignedDistance)/falloff)
	if p.Inside(uint32(p.Collider)) {
		t *= 0.5
	}
	mix := func(a, b uint8) uint8 {
		return uint8(float64(a) + t*(float64(b)-float64(a)))
	}
	return color.RGBA{R: mix(background.R, base.R), G: mix(background.G, base.G), B: mix(background.B, base.B), A: 255}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
