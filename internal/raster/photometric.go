package raster

import (
	"fmt"
	"math"
	"strings"
)

// Preset is a named filter equivalent to a fixed sequence of per-pixel stages.
type Preset string

const (
	PresetNone      Preset = ""
	PresetGrayscale Preset = "grayscale"
	PresetSepia     Preset = "sepia"
	PresetInvert    Preset = "invert"
	PresetVintage   Preset = "vintage"
	PresetCool      Preset = "cool"
	PresetWarm      Preset = "warm"
)

// ParsePreset accepts preset names case-insensitively; "" and "none" map to PresetNone.
func ParsePreset(name string) (Preset, error) {
	p := Preset(strings.ToLower(strings.TrimSpace(name)))
	switch p {
	case "none":
		return PresetNone, nil
	case PresetNone, PresetGrayscale, PresetSepia, PresetInvert, PresetVintage, PresetCool, PresetWarm:
		return p, nil
	default:
		return PresetNone, fmt.Errorf("%w: unknown preset %q", ErrInvalidFilterParameter, name)
	}
}

// Adjustment is one brightness, contrast, saturation, hue step. Brightness,
// Contrast and Saturation are percentages with 100 as identity; Hue is in degrees.
type Adjustment struct {
	Brightness float64
	Contrast   float64
	Saturation float64
	Hue        float64
}

// NewAdjustment returns the identity adjustment.
func NewAdjustment() Adjustment {
	return Adjustment{Brightness: 100, Contrast: 100, Saturation: 100}
}

func (a Adjustment) validate() error {
	for _, p := range []struct {
		name  string
		value float64
	}{
		{"brightness", a.Brightness},
		{"contrast", a.Contrast},
		{"saturation", a.Saturation},
		{"hue", a.Hue},
	} {
		if math.IsNaN(p.value) || math.IsInf(p.value, 0) {
			return fmt.Errorf("%w: %s=%v", ErrInvalidFilterParameter, p.name, p.value)
		}
	}
	return nil
}

// FilterChain is the photometric operation: Preset first, then each
// Adjustment in order, then a Gaussian blur of BlurRadius pixels.
type FilterChain struct {
	Preset      Preset
	Adjustments []Adjustment
	BlurRadius  float64
}

func (f FilterChain) Name() string { return "filter" }

func (f FilterChain) Apply(buf *Buffer) (*Buffer, error) { return Filter(buf, f) }

func (f FilterChain) validate() error {
	if _, err := ParsePreset(string(f.Preset)); err != nil {
		return err
	}
	for _, a := range f.Adjustments {
		if err := a.validate(); err != nil {
			return err
		}
	}
	if math.IsNaN(f.BlurRadius) || math.IsInf(f.BlurRadius, 0) || f.BlurRadius < 0 {
		return fmt.Errorf("%w: blur radius %v", ErrInvalidFilterParameter, f.BlurRadius)
	}
	return nil
}

// rgb holds channel values in [0, 255] between stages.
type rgb struct {
	r, g, b float64
}

type stage func(c rgb) rgb

func brightness(p float64) stage {
	k := p / 100
	return func(c rgb) rgb {
		return rgb{clamp255(c.r * k), clamp255(c.g * k), clamp255(c.b * k)}
	}
}

func contrast(p float64) stage {
	k := p / 100
	return func(c rgb) rgb {
		return rgb{
			clamp255((c.r-128)*k + 128),
			clamp255((c.g-128)*k + 128),
			clamp255((c.b-128)*k + 128),
		}
	}
}

func saturation(p float64) stage {
	k := p / 100
	return func(c rgb) rgb {
		h, s, l := rgbToHSL(c)
		return hslToRGB(h, clampFloat(s*k, 0, 1), l)
	}
}

func hueRotate(deg float64) stage {
	return func(c rgb) rgb {
		h, s, l := rgbToHSL(c)
		return hslToRGB(wrapDegrees(h+deg), s, l)
	}
}

func sepia(c rgb) rgb {
	return rgb{
		clamp255(0.393*c.r + 0.769*c.g + 0.189*c.b),
		clamp255(0.349*c.r + 0.686*c.g + 0.168*c.b),
		clamp255(0.272*c.r + 0.534*c.g + 0.131*c.b),
	}
}

func invert(c rgb) rgb {
	return rgb{255 - c.r, 255 - c.g, 255 - c.b}
}

func presetStages(p Preset) []stage {
	switch p {
	case PresetGrayscale:
		return []stage{saturation(0)}
	case PresetSepia:
		return []stage{sepia}
	case PresetInvert:
		return []stage{invert}
	case PresetVintage:
		return []stage{sepia, contrast(120), brightness(90)}
	case PresetCool:
		return []stage{saturation(120), hueRotate(180)}
	case PresetWarm:
		return []stage{saturation(140), hueRotate(-20)}
	default:
		return nil
	}
}

// adjustmentStages skips identity parameters; the skipped stage would return
// its input unchanged anyway.
func adjustmentStages(a Adjustment) []stage {
	var stages []stage
	if a.Brightness != 100 {
		stages = append(stages, brightness(a.Brightness))
	}
	if a.Contrast != 100 {
		stages = append(stages, contrast(a.Contrast))
	}
	if a.Saturation != 100 {
		stages = append(stages, saturation(a.Saturation))
	}
	if wrapDegrees(a.Hue) != 0 {
		stages = append(stages, hueRotate(a.Hue))
	}
	return stages
}

// Filter applies chain to buf. Colour stages leave alpha untouched; the blur
// covers all four channels.
func Filter(buf *Buffer, chain FilterChain) (*Buffer, error) {
	if err := buf.validate(); err != nil {
		return nil, err
	}
	if err := chain.validate(); err != nil {
		return nil, err
	}
	preset, _ := ParsePreset(string(chain.Preset))

	stages := presetStages(preset)
	for _, a := range chain.Adjustments {
		stages = append(stages, adjustmentStages(a)...)
	}

	out := buf.Clone()
	if len(stages) > 0 {
		for i := 0; i < len(out.Pix); i += 4 {
			c := rgb{float64(out.Pix[i]), float64(out.Pix[i+1]), float64(out.Pix[i+2])}
			for _, s := range stages {
				c = s(c)
			}
			out.Pix[i] = toByte(c.r)
			out.Pix[i+1] = toByte(c.g)
			out.Pix[i+2] = toByte(c.b)
		}
	}

	if chain.BlurRadius > 0 {
		out = gaussianBlur(out, chain.BlurRadius)
	}
	return out, nil
}

// rgbToHSL returns hue in [0, 360) and saturation, lightness in [0, 1].
func rgbToHSL(c rgb) (h, s, l float64) {
	r, g, b := c.r/255, c.g/255, c.b/255
	hi := math.Max(r, math.Max(g, b))
	lo := math.Min(r, math.Min(g, b))
	l = (hi + lo) / 2
	if hi == lo {
		return 0, 0, l
	}

	d := hi - lo
	if l > 0.5 {
		s = d / (2 - hi - lo)
	} else {
		s = d / (hi + lo)
	}

	switch hi {
	case r:
		h = (g - b) / d
		if g < b {
			h += 6
		}
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	return wrapDegrees(h * 60), s, l
}

func hslToRGB(h, s, l float64) rgb {
	if s == 0 {
		v := clamp255(l * 255)
		return rgb{v, v, v}
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	hk := h / 360
	return rgb{
		clamp255(hueToChannel(p, q, hk+1.0/3) * 255),
		clamp255(hueToChannel(p, q, hk) * 255),
		clamp255(hueToChannel(p, q, hk-1.0/3) * 255),
	}
}

func hueToChannel(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	default:
		return p
	}
}

// wrapDegrees maps any finite angle into [0, 360).
func wrapDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

func clamp255(v float64) float64 {
	return clampFloat(v, 0, 255)
}
