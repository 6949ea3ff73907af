package pipeline

import (
	"crypto/sha256"
	_ "embed"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"

	"github.com/gogpu/swapframe/gpucore"
	"github.com/gogpu/swapframe/internal/cache"
)

//go:embed shaders/vertex.wgsl
var vertexWGSL string

//go:embed shaders/fragment.wgsl
var fragmentWGSL string

// Entry points of the embedded shaders.
const (
	VertexEntry   = "vs_main"
	FragmentEntry = "fs_main"
)

// compiled holds SPIR-V by WGSL source digest. Renderers recreated on the
// same shaders skip the naga compile.
var compiled = cache.New[[sha256.Size]byte, []uint32](32)

// CompileStage compiles WGSL source to SPIR-V and returns a stage carrying
// both. The SPIR-V slice is shared between stages of the same source and
// must not be modified.
func CompileStage(source, entry string) (gpucore.ShaderStage, error) {
	if entry == "" {
		return gpucore.ShaderStage{}, fmt.Errorf("pipeline: shader without entry point: %w", gpucore.ErrInvalidArgument)
	}
	words, err := compiled.GetOrCreate(sha256.Sum256([]byte(source)), func() ([]uint32, error) {
		return compile(source)
	})
	if err != nil {
		return gpucore.ShaderStage{}, fmt.Errorf("pipeline: compile %s: %w", entry, err)
	}
	return gpucore.ShaderStage{WGSL: source, SPIRV: words, EntryPoint: entry}, nil
}

func compile(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, err
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V size %d is not word aligned", len(spirvBytes))
	}

	// SPIR-V is a stream of little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return words, nil
}

// CacheStats reports the compile cache counters.
func CacheStats() cache.Stats { return compiled.Stats() }
