// Package imageio discovers and decodes the image files of an acquisition
// and assembles them into labeled arrays.
//
// Frames are files named <position>_<channel>_t<time>.<ext> where ext is
// tif, tiff, png, jpg or jpeg. Intensities are normalized to [0, 1].
package imageio

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	_ "golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"

	"cellseg/internal/models"
	"cellseg/pkg/labeled"
)

// Axis names of the arrays built by Load.
const (
	PositionAxis = "position"
	ChannelAxis  = "channel"
	TimeAxis     = "time"
	RowAxis      = "y"
	ColAxis      = "x"
)

var framePattern = regexp.MustCompile(`^(.+)_([^_]+)_t(\d+)\.(?i:tiff?|png|jpe?g)$`)

// ParseFilename extracts the acquisition coordinates from a frame filename.
func ParseFilename(name string) (models.Frame, bool) {
	m := framePattern.FindStringSubmatch(name)
	if m == nil {
		return models.Frame{}, false
	}
	t, err := strconv.Atoi(m[3])
	if err != nil {
		return models.Frame{}, false
	}
	return models.Frame{Filename: name, Position: m[1], Channel: m[2], Time: t}, true
}

// Scan lists the frames in dir without decoding them. Files that do not
// follow the frame naming scheme are ignored.
func Scan(dir string) (*models.Acquisition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]string)
	var frames []models.Frame
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f, ok := ParseFilename(e.Name())
		if !ok {
			continue
		}
		key := fmt.Sprintf("%s/%s/%d", f.Position, f.Channel, f.Time)
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("frames %s and %s share position %s, channel %s, time %d", prev, f.Filename, f.Position, f.Channel, f.Time)
		}
		seen[key] = f.Filename
		frames = append(frames, f)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frame images found in %s", dir)
	}
	return models.NewAcquisition(dir, frames), nil
}

// Load decodes every frame of acq into a position × channel × time × y × x
// array. Every combination of coordinates must be present and all frames
// must share one size.
func Load(acq *models.Acquisition) (*labeled.Array, error) {
	if !acq.Complete() {
		return nil, fmt.Errorf("acquisition in %s is incomplete: %d frames for %d positions, %d channels, %d timepoints",
			acq.Dir, len(acq.Frames), len(acq.Positions), len(acq.Channels), len(acq.Times))
	}

	var data []float64
	for i, f := range acq.Frames {
		img, err := LoadImage(filepath.Join(acq.Dir, f.Filename))
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", f.Filename, err)
		}
		bounds := img.Bounds()
		if i == 0 {
			acq.Width, acq.Height = bounds.Dx(), bounds.Dy()
			data = make([]float64, 0, len(acq.Frames)*acq.Width*acq.Height)
		} else if bounds.Dx() != acq.Width || bounds.Dy() != acq.Height {
			return nil, &labeled.ShapeMismatchError{Op: "load " + f.Filename, Want: []int{acq.Height, acq.Width}, Got: []int{bounds.Dy(), bounds.Dx()}}
		}
		data = append(data, ToMatrix(img).RawMatrix().Data...)
	}

	return labeled.New(data,
		labeled.NewAxis(PositionAxis, acq.Positions...),
		labeled.NewAxis(ChannelAxis, acq.Channels...),
		labeled.NewAxis(TimeAxis, acq.TimeLabels()...),
		labeled.RangeAxis(RowAxis, acq.Height),
		labeled.RangeAxis(ColAxis, acq.Width),
	)
}

// LoadDir scans and loads dir.
func LoadDir(dir string) (*labeled.Array, *models.Acquisition, error) {
	acq, err := Scan(dir)
	if err != nil {
		return nil, nil, err
	}
	a, err := Load(acq)
	if err != nil {
		return nil, nil, err
	}
	return a, acq, nil
}

// LoadField loads a single image, such as a darkfield or flatfield, as a
// y × x array.
func LoadField(path string) (*labeled.Array, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", path, err)
	}
	return labeled.FromMatrix(ToMatrix(img), labeled.RangeAxis(RowAxis, img.Bounds().Dy()), labeled.RangeAxis(ColAxis, img.Bounds().Dx()))
}

// LoadImage decodes a TIFF, PNG or JPEG file.
func LoadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// ToMatrix converts an image to gray intensities in [0, 1], one row per
// image row.
func ToMatrix(img image.Image) *mat.Dense {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	m := mat.NewDense(height, width, nil)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			m.Set(y, x, float64(g.Y)/65535.0)
		}
	}
	return m
}
