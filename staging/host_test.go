package staging

import (
	"context"
	"testing"

	"go.viam.com/test"

	"go.viam.com/bevdet/logging"
)

func TestHostMemory(t *testing.T) {
	m, err := NewHostMemory(10, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.Len(), test.ShouldEqual, 10)
	test.That(t, m.Bytes(), test.ShouldHaveLength, 10)

	ctx := context.Background()
	test.That(t, m.CopyFromHost(ctx, 2, []byte{1, 2, 3}), test.ShouldBeNil)
	test.That(t, m.Sync(ctx), test.ShouldBeNil)
	test.That(t, m.CopyFromHost(ctx, 8, []byte{1, 2, 3}), test.ShouldNotBeNil)

	out := make([]byte, 4)
	n, err := m.ReadAt(out, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 4)
	test.That(t, out, test.ShouldResemble, []byte{0, 1, 2, 3})

	_, err = m.ReadAt(out, 8)
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, m.Free(), test.ShouldBeNil)
	test.That(t, m.Free(), test.ShouldBeError, errMemoryFreed)
	test.That(t, m.CopyFromHost(ctx, 0, []byte{1}), test.ShouldBeError, errMemoryFreed)
	test.That(t, m.Bytes(), test.ShouldBeNil)

	_, err = NewHostMemory(0, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestParseChannelOrder(t *testing.T) {
	for in, want := range map[string]ChannelOrder{"": BGR, "bgr": BGR, "RGB": RGB} {
		got, err := ParseChannelOrder(in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, want)
	}
	_, err := ParseChannelOrder("yuv")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, RGB.String(), test.ShouldEqual, "rgb")
}
