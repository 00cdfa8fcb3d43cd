package raster

// DefaultMatteThreshold is the per-channel level above which a pixel counts
// as background.
const DefaultMatteThreshold uint8 = 240

type MatteSpec struct {
	Threshold uint8
}

// DefaultMatte returns a MatteSpec with DefaultMatteThreshold.
func DefaultMatte() MatteSpec {
	return MatteSpec{Threshold: DefaultMatteThreshold}
}

func (m MatteSpec) Name() string { return "matte" }

func (m MatteSpec) Apply(buf *Buffer) (*Buffer, error) { return Matte(buf, m) }

// Matte clears alpha on every pixel whose R, G and B all exceed the threshold.
// Each pixel is judged on its own: bright pixels inside the subject are
// cleared too, and nothing is feathered.
func Matte(buf *Buffer, spec MatteSpec) (*Buffer, error) {
	if err := buf.validate(); err != nil {
		return nil, err
	}
	t := spec.Threshold
	out := buf.Clone()
	for i := 0; i < len(out.Pix); i += 4 {
		if out.Pix[i] > t && out.Pix[i+1] > t && out.Pix[i+2] > t {
			out.Pix[i+3] = 0
		}
	}
	return out, nil
}
