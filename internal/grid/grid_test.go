package grid

import (
	"image"
	"testing"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/pkg/types"
)

func TestCellLayout(t *testing.T) {
	region := types.Rect{X: 100, Y: 50, W: 170, H: 255}
	// cellW = 42, cellH = 36
	cases := []struct {
		index int
		want  types.Rect
	}{
		{0, types.Rect{X: 100, Y: 50, W: 42, H: 36}},
		{3, types.Rect{X: 226, Y: 50, W: 42, H: 36}},
		{4, types.Rect{X: 100, Y: 86, W: 42, H: 36}},
		{27, types.Rect{X: 226, Y: 266, W: 42, H: 36}},
	}
	for _, tc := range cases {
		if got := Cell(region, tc.index); got != tc.want {
			t.Fatalf("Cell(%d) = %+v, want %+v", tc.index, got, tc.want)
		}
	}
}

func TestSlotsDeriveSubRects(t *testing.T) {
	slots := Slots(types.Rect{X: 0, Y: 0, W: 160, H: 252})
	if len(slots) != SlotCount {
		t.Fatalf("len(slots) = %d", len(slots))
	}
	s := slots[5] // column 1, row 1
	if s.Cell != (types.Rect{X: 40, Y: 36, W: 40, H: 36}) {
		t.Fatalf("unexpected cell %+v", s.Cell)
	}
	// padTop = floor(36*0.22) = 7
	if s.Icon != (types.Rect{X: 42, Y: 43, W: 36, H: 27}) {
		t.Fatalf("unexpected icon rect %+v", s.Icon)
	}
	// 40*0.72 = 28.8, 36*0.40 = 14.4
	if s.Text != (types.Rect{X: 41, Y: 37, W: 28, H: 14}) {
		t.Fatalf("unexpected text rect %+v", s.Text)
	}
	for i, slot := range slots {
		if slot.Index != i {
			t.Fatalf("slot %d has index %d", i, slot.Index)
		}
		if !slot.Icon.Image().In(slot.Cell.Image()) {
			t.Fatalf("slot %d icon %+v escapes cell %+v", i, slot.Icon, slot.Cell)
		}
	}
}

func TestCropClampsToFrame(t *testing.T) {
	f := types.NewFrame(20, 10)
	crop := Crop(f, types.Rect{X: 15, Y: -5, W: 10, H: 10})
	if crop == nil {
		t.Fatalf("expected partial crop")
	}
	if crop.Bounds() != image.Rect(15, 0, 20, 5) {
		t.Fatalf("unexpected bounds %v", crop.Bounds())
	}

	if Crop(f, types.Rect{X: 30, Y: 30, W: 4, H: 4}) != nil {
		t.Fatalf("expected nil crop outside frame")
	}
	if Crop(nil, types.Rect{W: 1, H: 1}) != nil {
		t.Fatalf("expected nil crop for nil frame")
	}
}

func TestCropSharesPixels(t *testing.T) {
	f := types.NewFrame(4, 4)
	crop := Crop(f, types.Rect{X: 1, Y: 1, W: 2, H: 2})
	crop.Pix[crop.PixOffset(1, 1)] = 200
	if f.Pix[4*(1*4+1)] != 200 {
		t.Fatalf("crop does not alias frame buffer")
	}
}

func TestCalibratorTwoClicks(t *testing.T) {
	c := NewCalibrator()
	if _, ok := c.Mark("inventory", image.Pt(300, 400)); ok {
		t.Fatalf("first corner returned a region")
	}
	if !c.Pending("inventory") {
		t.Fatalf("expected pending corner")
	}
	if c.Pending("money") {
		t.Fatalf("channels must be independent")
	}
	r, ok := c.Mark("inventory", image.Pt(100, 120))
	if !ok {
		t.Fatalf("second corner did not complete")
	}
	if r != (types.Rect{X: 100, Y: 120, W: 200, H: 280}) {
		t.Fatalf("unexpected region %+v", r)
	}
	if c.Pending("inventory") {
		t.Fatalf("pending corner not cleared")
	}
}

func TestRegionFromCornersDegenerate(t *testing.T) {
	r := RegionFromCorners(image.Pt(5, 5), image.Pt(5, 9))
	if r.W != 1 || r.H != 4 {
		t.Fatalf("unexpected region %+v", r)
	}
}
