package tray

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"runtime"
	"sync"
)

const iconSize = 32

var (
	iconOnce  sync.Once
	iconBytes []byte
)

// Icon returns the tray image: a knob with a position marker. Windows receives it as an ICO
// with an embedded PNG, other platforms as a plain PNG.
func Icon() []byte {
	iconOnce.Do(func() {
		raw := knobPNG()
		if runtime.GOOS == "windows" {
			raw = wrapICO(raw, iconSize)
		}
		iconBytes = raw
	})
	return iconBytes
}

func knobPNG() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, iconSize, iconSize))
	body := color.NRGBA{R: 0x1d, G: 0xb9, B: 0x54, A: 0xff}
	marker := color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

	c := iconSize / 2
	r := c - 1
	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			dx, dy := x-c, y-c
			if dx*dx+dy*dy <= r*r {
				img.SetNRGBA(x, y, body)
			}
		}
	}
	// Marker at twelve o'clock.
	for y := 3; y < c; y++ {
		for x := c - 1; x <= c; x++ {
			img.SetNRGBA(x, y, marker)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// wrapICO puts a PNG into a single-image ICO container.
func wrapICO(pngData []byte, size int) []byte {
	var buf bytes.Buffer
	// ICONDIR: reserved, type 1 (icon), one image.
	_ = binary.Write(&buf, binary.LittleEndian, [3]uint16{0, 1, 1})
	// ICONDIRENTRY: width, height, no palette, reserved, planes, bpp, size, offset.
	buf.Write([]byte{byte(size), byte(size), 0, 0})
	_ = binary.Write(&buf, binary.LittleEndian, [2]uint16{1, 32})
	_ = binary.Write(&buf, binary.LittleEndian, [2]uint32{uint32(len(pngData)), 6 + 16})
	buf.Write(pngData)
	return buf.Bytes()
}
