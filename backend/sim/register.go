package sim

import "github.com/gogpu/swapframe/gpucore"

// Name is the registry name of the simulated backend. It is opened only by
// name: automatic selection never falls back to it.
const Name = "sim"

func init() {
	gpucore.RegisterExplicit(Name, func(opts gpucore.DeviceOptions) (gpucore.Device, error) {
		var o []Option
		if opts.Label != "" {
			o = append(o, WithName(opts.Label))
		}
		return New(o...), nil
	})
}
