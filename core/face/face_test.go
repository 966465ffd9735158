package face

import (
	"bytes"
	"image"
	"image/png"
	"math"
	"testing"

	"github.com/pkg/errors"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Descriptor
		want    float64
		wantErr error
	}{
		{name: "identical", a: Descriptor{1, 2, 3}, b: Descriptor{1, 2, 3}, want: 0},
		{name: "3-4-5", a: Descriptor{0, 0}, b: Descriptor{3, 4}, want: 5},
		{name: "symmetric", a: Descriptor{3, 4}, b: Descriptor{0, 0}, want: 5},
		{name: "empty", a: Descriptor{}, b: Descriptor{1}, wantErr: ErrEmptyDescriptor},
		{name: "length mismatch", a: Descriptor{1, 2}, b: Descriptor{1}, wantErr: ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Distance(tt.a, tt.b)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Distance() error = %v, wantErr %v", err, tt.wantErr)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Distance() got = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDescriptor_Valid(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	tests := []struct {
		name string
		d    Descriptor
		want bool
	}{
		{name: "nil", d: nil, want: false},
		{name: "empty", d: Descriptor{}, want: false},
		{name: "NaN", d: Descriptor{0.1, nan}, want: false},
		{name: "Inf", d: Descriptor{inf}, want: false},
		{name: "ok", d: Descriptor{0.1, -0.2}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.Valid(); got != tt.want {
				t.Errorf("Valid() got = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBox_Center(t *testing.T) {
	x, y := Box{X: 10, Y: 20, W: 30, H: 40}.Center()
	if x != 25 || y != 40 {
		t.Errorf("Center() got = (%v, %v), want (25, 40)", x, y)
	}
}

func TestFrameFromImage(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 64, 48))); err != nil {
		t.Fatalf("png.Encode() failed: %v", err)
	}

	frame, err := FrameFromImage(7, buf.Bytes())
	if err != nil {
		t.Fatalf("FrameFromImage() failed: %v", err)
	}
	if frame.Seq != 7 || frame.Width != 64 || frame.Height != 48 {
		t.Errorf("FrameFromImage() got = %+v", frame)
	}

	if _, err = FrameFromImage(8, []byte("not an image")); err == nil {
		t.Error("FrameFromImage() expected an error for garbage input")
	}
}

func TestFrame_JPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 64, 48))); err != nil {
		t.Fatalf("png.Encode() failed: %v", err)
	}

	converted, err := Frame{Data: buf.Bytes()}.JPEG()
	if err != nil {
		t.Fatalf("JPEG() failed: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(converted))
	if err != nil || format != "jpeg" || cfg.Width != 64 || cfg.Height != 48 {
		t.Fatalf("JPEG() of a png = %s %dx%d (err %v), want jpeg 64x48", format, cfg.Width, cfg.Height, err)
	}

	same, err := Frame{Data: converted}.JPEG()
	if err != nil {
		t.Fatalf("JPEG() failed: %v", err)
	}
	if !bytes.Equal(same, converted) {
		t.Error("JPEG() re-encoded an image that already was a jpeg")
	}

	if _, err = (Frame{Data: []byte("not an image")}).JPEG(); err == nil {
		t.Error("JPEG() expected an error for garbage input")
	}
}
