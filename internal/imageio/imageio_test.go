package imageio

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"golang.org/x/image/tiff"

	"cellseg/internal/models"
	"cellseg/pkg/labeled"
)

// createTestImage creates a grayscale test image with the specified dimensions and pattern
func createTestImage(width, height int, pattern func(x, y int) uint16) image.Image {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.Gray16{Y: pattern(x, y)})
		}
	}
	return img
}

// writeImage encodes img as TIFF or PNG depending on the extension of name
func writeImage(t *testing.T, dir, name string, img image.Image) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("Failed to create %s: %v", name, err)
	}
	defer f.Close()

	if filepath.Ext(name) == ".png" {
		err = png.Encode(f, img)
	} else {
		err = tiff.Encode(f, img, nil)
	}
	if err != nil {
		t.Fatalf("Failed to encode %s: %v", name, err)
	}
}

// TestParseFilename verifies the frame naming scheme
func TestParseFilename(t *testing.T) {
	tests := []struct {
		name     string
		ok       bool
		position string
		channel  string
		time     int
	}{
		{"A1_DAPI_t0.tif", true, "A1", "DAPI", 0},
		{"well_B2_GFP_t12.TIFF", true, "well_B2", "GFP", 12},
		{"p3_EPI_t007.png", true, "p3", "EPI", 7},
		{"A1_DAPI_t0.bmp", false, "", "", 0},
		{"notes.txt", false, "", "", 0},
		{"A1_DAPI.tif", false, "", "", 0},
	}
	for _, tt := range tests {
		f, ok := ParseFilename(tt.name)
		if ok != tt.ok {
			t.Errorf("%s: expected ok=%v, got %v", tt.name, tt.ok, ok)
			continue
		}
		if ok && (f.Position != tt.position || f.Channel != tt.channel || f.Time != tt.time) {
			t.Errorf("%s: expected %s/%s/%d, got %s/%s/%d", tt.name, tt.position, tt.channel, tt.time, f.Position, f.Channel, f.Time)
		}
	}
}

// TestLoadDir verifies that frames are assembled into a labeled array
func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	width, height := 4, 3

	// value encodes position, channel and time so placement can be checked
	value := func(p, c, tm int) uint16 { return uint16(1000 * (1 + 4*p + 2*c + tm)) }
	for p, pos := range []string{"A1", "B2"} {
		for c, ch := range []string{"DAPI", "GFP"} {
			for tm, ts := range []string{"0", "1"} {
				v := value(p, c, tm)
				img := createTestImage(width, height, func(x, y int) uint16 { return v + uint16(y*width+x) })
				ext := ".tif"
				if c == 1 {
					ext = ".png"
				}
				writeImage(t, dir, pos+"_"+ch+"_t"+ts+ext, img)
			}
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatalf("Failed to write extra file: %v", err)
	}

	a, acq, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}
	if acq.Width != width || acq.Height != height {
		t.Errorf("Expected %dx%d frames, got %dx%d", width, height, acq.Width, acq.Height)
	}

	wantAxes := []string{PositionAxis, ChannelAxis, TimeAxis, RowAxis, ColAxis}
	names := a.AxisNames()
	for i, n := range wantAxes {
		if names[i] != n {
			t.Fatalf("Expected axes %v, got %v", wantAxes, names)
		}
	}

	plane, err := a.Plane(labeled.Index{
		{Axis: PositionAxis, Label: "B2"},
		{Axis: ChannelAxis, Label: "GFP"},
		{Axis: TimeAxis, Label: "1"},
	}, RowAxis, ColAxis)
	if err != nil {
		t.Fatalf("Failed to select plane: %v", err)
	}
	want := float64(value(1, 1, 1)+uint16(2*width+3)) / 65535.0
	if got := plane.At(2, 3); got != want {
		t.Errorf("Expected %f at (2,3), got %f", want, got)
	}
}

// TestLoadKeepsFramesAsMetadata verifies that loading copies pixel data into
// the array without changing the scanned frames
func TestLoadKeepsFramesAsMetadata(t *testing.T) {
	dir := t.TempDir()
	img := createTestImage(3, 2, func(x, y int) uint16 { return uint16(100 * (x + y)) })
	writeImage(t, dir, "A1_DAPI_t0.png", img)
	writeImage(t, dir, "A1_DAPI_t1.tif", img)

	acq, err := Scan(dir)
	if err != nil {
		t.Fatalf("Failed to scan directory: %v", err)
	}
	before := append([]models.Frame(nil), acq.Frames...)

	a, err := Load(acq)
	if err != nil {
		t.Fatalf("Failed to load acquisition: %v", err)
	}
	if !reflect.DeepEqual(before, acq.Frames) {
		t.Errorf("Expected frames %+v to be unchanged, got %+v", before, acq.Frames)
	}
	if a.Size() != 2*3*2 {
		t.Errorf("Expected 12 values, got %d", a.Size())
	}
}

// TestLoadIncomplete verifies that missing frames are reported
func TestLoadIncomplete(t *testing.T) {
	dir := t.TempDir()
	img := createTestImage(2, 2, func(x, y int) uint16 { return 0 })
	writeImage(t, dir, "A1_DAPI_t0.png", img)
	writeImage(t, dir, "A1_DAPI_t1.png", img)
	writeImage(t, dir, "A1_GFP_t0.png", img)

	if _, _, err := LoadDir(dir); err == nil {
		t.Error("Expected error for incomplete acquisition, got nil")
	}
}

// TestLoadSizeMismatch verifies that frames must share one size
func TestLoadSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "A1_DAPI_t0.png", createTestImage(2, 2, func(x, y int) uint16 { return 0 }))
	writeImage(t, dir, "A1_DAPI_t1.png", createTestImage(3, 2, func(x, y int) uint16 { return 0 }))

	_, _, err := LoadDir(dir)
	var shapeErr *labeled.ShapeMismatchError
	if !errors.As(err, &shapeErr) {
		t.Errorf("Expected ShapeMismatchError, got %v", err)
	}
}

// TestScanErrors verifies empty and duplicate directories are rejected
func TestScanErrors(t *testing.T) {
	if _, err := Scan(t.TempDir()); err == nil {
		t.Error("Expected error for empty directory, got nil")
	}

	dir := t.TempDir()
	img := createTestImage(2, 2, func(x, y int) uint16 { return 0 })
	writeImage(t, dir, "A1_DAPI_t1.png", img)
	writeImage(t, dir, "A1_DAPI_t01.tif", img)
	if _, err := Scan(dir); err == nil {
		t.Error("Expected error for duplicate frame coordinates, got nil")
	}
}

// TestLoadField verifies single-image loading and orientation
func TestLoadField(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "flat.tif", createTestImage(3, 2, func(x, y int) uint16 { return uint16(65535 * x / 2) }))

	field, err := LoadField(filepath.Join(dir, "flat.tif"))
	if err != nil {
		t.Fatalf("Failed to load field: %v", err)
	}
	shape := field.Shape()
	if shape[0] != 2 || shape[1] != 3 {
		t.Fatalf("Expected 2x3 field, got %v", shape)
	}
	if got := field.At(1, 2); got != 1 {
		t.Errorf("Expected 1 at (1,2), got %f", got)
	}
	if got := field.At(1, 0); got != 0 {
		t.Errorf("Expected 0 at (1,0), got %f", got)
	}

	if _, err := LoadField(filepath.Join(dir, "missing.tif")); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}
