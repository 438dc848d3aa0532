// Package shrink implements the video-frame pixel-decimation
// transform: picking one out of every (shrink+1) pixels along each
// axis out of a source frame, per §4.6.
//
// The "copy to scratch first" optimization policy below is grounded
// on the same tradeoff the teacher's RTMP publisher path makes when
// it copies a GOP cache chunk into a private buffer before re-reading
// it (rtmp_publisher.go): small shrink factors still read most of the
// frame, so one linear copy of it beats many small reads straight off
// an uncached hardware mapping; heavy shrink factors touch few pixels
// and read them from the mapping directly.
package shrink

// Dimensions computes the output width and height of a frame shrunk
// by the given per-axis factors. A shrink factor of 0 means "keep
// every pixel on that axis".
func Dimensions(screenWidth, screenHeight uint16, shrinkWidth, shrinkHeight uint8) (outW, outH uint16) {
	outW = screenWidth / (uint16(shrinkWidth) + 1)
	outH = screenHeight / (uint16(shrinkHeight) + 1)
	return
}

// BytesPerPixel is fixed: frames are dumped as 24-bit RGB.
const BytesPerPixel = 3

// scratchThreshold is the per-axis shrink factor below which (on both
// axes) the full frame is first copied into a scratch buffer; when
// either factor is at or above it, pixels are read from the mapped
// source directly.
const scratchThreshold = 4

// Copy writes the shrunk frame from src (a full, unshrunk
// screenWidth*screenHeight*3-byte frame) into dst, which must be at
// least Dimensions(...) width * height * 3 bytes. If shrinkWidth and
// shrinkHeight are both 0, it is a byte-for-byte copy.
func Copy(dst []byte, src []byte, screenWidth, screenHeight uint16, shrinkWidth, shrinkHeight uint8) {
	if shrinkWidth == 0 && shrinkHeight == 0 {
		copy(dst, src[:int(screenWidth)*int(screenHeight)*BytesPerPixel])
		return
	}

	outW, outH := Dimensions(screenWidth, screenHeight, shrinkWidth, shrinkHeight)

	source := src
	if shrinkWidth < scratchThreshold && shrinkHeight < scratchThreshold {
		scratch := make([]byte, int(screenWidth)*int(screenHeight)*BytesPerPixel)
		copy(scratch, src)
		source = scratch
	}

	strideIn := int(screenWidth) * BytesPerPixel
	strideOut := int(outW) * BytesPerPixel
	stepX := int(shrinkWidth) + 1
	stepY := int(shrinkHeight) + 1

	for y := 0; y < int(outH); y++ {
		srcY := y * stepY
		srcRow := source[srcY*strideIn : srcY*strideIn+strideIn]
		dstRow := dst[y*strideOut : y*strideOut+strideOut]
		for x := 0; x < int(outW); x++ {
			srcX := x * stepX * BytesPerPixel
			dstX := x * BytesPerPixel
			copy(dstRow[dstX:dstX+BytesPerPixel], srcRow[srcX:srcX+BytesPerPixel])
		}
	}
}
