// Package pipeline loads shaders and builds the graphics and compute
// pipelines the renderer draws with.
package pipeline

import (
	"io/fs"

	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/gfx"
)

const spirvMagic = 0x07230203

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}

// LoadShaderModule reads a SPIR-V binary from fsys. A missing or malformed
// file is an error; no module is created for it.
func LoadShaderModule(dev gfx.Device, fsys fs.FS, path string) (gfx.ShaderModule, error) {
	b, err := fs.ReadFile(fsys, path)
	if err != nil {
		return 0, errors.Wrapf(err, "read shader %s", path)
	}
	if len(b) == 0 || len(b)%4 != 0 {
		return 0, errors.Newf("shader %s: %d bytes is not a whole number of words", path, len(b))
	}

	code := bytesToBytecode(b)
	if code[0] != spirvMagic {
		return 0, errors.Newf("shader %s: bad SPIR-V magic %#08x", path, code[0])
	}

	module, err := dev.CreateShaderModule(code)
	if err != nil {
		return 0, errors.Wrapf(err, "create shader module %s", path)
	}
	return module, nil
}
