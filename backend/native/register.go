package native

import (
	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/gogpu/swapframe/gpucore"
)

// Name is the registry name of the native backend.
const Name = "native"

func init() {
	gpucore.Register(Name, 100, func(opts gpucore.DeviceOptions) (gpucore.Device, error) {
		return Open(opts)
	}, available)
}

func available() bool {
	return len(hardwareBackends()) > 0
}
