// Package model holds the cross-run-stable entities shared by the
// iRoot engine and the systematic scheduler: images, instructions,
// threads, objects, accesses, actions, states and executions (spec
// §3).
package model

// ImageID stably identifies a loaded code module across runs.
type ImageID uint32

// Image is an immutable loaded code module.
type Image struct {
	ID       ImageID
	Path     string
	Low      uintptr
	High     uintptr
	DataLow  uintptr
	DataSize uintptr
	BSSLow   uintptr
	BSSSize  uintptr

	// commonLibrary marks images the analysis should treat as
	// uninteresting system libraries (libc, the runtime, ...).
	commonLibrary bool
}

// NewImage constructs an Image.
func NewImage(id ImageID, path string, low, high, dataStart, dataSize, bssStart, bssSize uintptr, common bool) Image {
	return Image{
		ID:            id,
		Path:          path,
		Low:           low,
		High:          high,
		DataLow:       dataStart,
		DataSize:      dataSize,
		BSSLow:        bssStart,
		BSSSize:       bssSize,
		commonLibrary: common,
	}
}

// IsCommonLibrary reports whether the image is a common system
// library, per the predicate named in spec §3.
func (img Image) IsCommonLibrary() bool {
	return img.commonLibrary
}

// Contains reports whether addr falls within the image's code range.
func (img Image) Contains(addr uintptr) bool {
	return addr >= img.Low && addr < img.High
}
