package utils

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestWrapAngle(t *testing.T) {
	t.Run("stays in range and is idempotent", func(t *testing.T) {
		for a := -1000.0; a <= 1000.0; a += 0.25 {
			w := WrapAngle(a, 180)
			test.That(t, w, test.ShouldBeGreaterThan, -180)
			test.That(t, w, test.ShouldBeLessThanOrEqualTo, 180)
			test.That(t, WrapAngle(w, 180), test.ShouldEqual, w)
		}
	})

	t.Run("boundaries", func(t *testing.T) {
		test.That(t, WrapAngle(180, 180), test.ShouldEqual, 180)
		test.That(t, WrapAngle(-180, 180), test.ShouldEqual, 180)
		test.That(t, WrapAngle(540, 180), test.ShouldEqual, 180)
		test.That(t, WrapAngle(190, 180), test.ShouldAlmostEqual, -170)
		test.That(t, WrapAngle(-190, 180), test.ShouldAlmostEqual, 170)
		test.That(t, WrapAngle(100, 90), test.ShouldAlmostEqual, -80)
		test.That(t, WrapAngle(0, 180), test.ShouldEqual, 0)
	})

	t.Run("large inputs", func(t *testing.T) {
		w := WrapAngle(1e7+30, 180)
		test.That(t, w, test.ShouldBeGreaterThan, -180)
		test.That(t, w, test.ShouldBeLessThanOrEqualTo, 180)
	})

	t.Run("degenerate inputs", func(t *testing.T) {
		test.That(t, math.IsNaN(WrapAngle(math.NaN(), 180)), test.ShouldBeTrue)
		test.That(t, math.IsInf(WrapAngle(math.Inf(1), 180), 1), test.ShouldBeTrue)
		test.That(t, WrapAngle(500, 0), test.ShouldEqual, 500)
	})
}

func TestAngleConversions(t *testing.T) {
	test.That(t, DegToRad(180), test.ShouldAlmostEqual, math.Pi)
	test.That(t, RadToDeg(math.Pi/2), test.ShouldAlmostEqual, 90)
	test.That(t, AngleDiffDeg(350, 10), test.ShouldAlmostEqual, 20)
}

func TestBytes(t *testing.T) {
	test.That(t, Uint16FromBytesBE([]byte{0x40, 0x00}), test.ShouldEqual, uint16(16384))
	test.That(t, Uint16FromBytesBE([]byte{0xC0, 0x00, 0x12}), test.ShouldEqual, uint16(0xC000))
}
