package fitsimg

import (
	"fmt"
	"os"

	"github.com/astrogo/fitsio"

	"github.com/abworrall/lacosmic/pkg/emath"
	"github.com/abworrall/lacosmic/pkg/errors"
)

// Card is a header keyword to write.
type Card struct {
	Name    string
	Value   interface{}
	Comment string
}

// HDU is one header/data unit to write. A nil Grid writes a header-only
// unit, which is how calibrated exposures carry their primary header.
//
// Bitpix picks the stored type (8, 16, 32, 64, -32 or -64; zero means
// -64). Grid holds the stored values, which are converted to that type
// as is: BSCALE/BZERO cards are written but not applied.
type HDU struct {
	Cards  []Card
	Grid   *emath.FloatGrid
	Bitpix int
}

// WriteImage writes the units to path, the first one being the primary
// HDU. Failures are ErrFilesystem.
func WriteImage(path string, hdus ...HDU) error {
	w, err := os.Create(path)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "create %s", path), errors.ErrFilesystem)
	}
	defer w.Close()

	f, err := fitsio.Create(w)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "create fits %s", path), errors.ErrFilesystem)
	}

	for i, u := range hdus {
		if err := writeHDU(f, u); err != nil {
			f.Close()
			return errors.Mark(errors.Wrapf(err, "write %s[%d]", path, i), errors.ErrFilesystem)
		}
	}

	if err := f.Close(); err != nil {
		return errors.Mark(errors.Wrapf(err, "close fits %s", path), errors.ErrFilesystem)
	}
	return w.Close()
}

func writeHDU(f *fitsio.File, u HDU) error {
	bitpix := u.Bitpix
	if bitpix == 0 {
		bitpix = -64
	}
	axes := []int{}
	var data interface{}
	if u.Grid != nil {
		axes = []int{u.Grid.Dx(), u.Grid.Dy()}
		var err error
		if data, err = storedPixels(bitpix, u.Grid.Values()); err != nil {
			return err
		}
	}

	img := fitsio.NewImage(bitpix, axes)
	defer img.Close()

	cards := make([]fitsio.Card, 0, len(u.Cards))
	for _, c := range u.Cards {
		cards = append(cards, fitsio.Card{Name: c.Name, Value: c.Value, Comment: c.Comment})
	}
	if len(cards) > 0 {
		if err := img.Header().Append(cards...); err != nil {
			return err
		}
	}

	if data != nil {
		if err := img.Write(data); err != nil {
			return err
		}
	}

	return f.Write(img)
}

// storedPixels narrows vals into the slice type fitsio wants for bitpix.
func storedPixels(bitpix int, vals []float64) (interface{}, error) {
	switch bitpix {
	case 8:
		out := make([]uint8, len(vals))
		for i, v := range vals {
			out[i] = uint8(v)
		}
		return out, nil
	case 16:
		out := make([]int16, len(vals))
		for i, v := range vals {
			out[i] = int16(v)
		}
		return out, nil
	case 32:
		out := make([]int32, len(vals))
		for i, v := range vals {
			out[i] = int32(v)
		}
		return out, nil
	case 64:
		out := make([]int64, len(vals))
		for i, v := range vals {
			out[i] = int64(v)
		}
		return out, nil
	case -32:
		out := make([]float32, len(vals))
		for i, v := range vals {
			out[i] = float32(v)
		}
		return out, nil
	case -64:
		return vals, nil
	}
	return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
}
