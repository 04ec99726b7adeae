package agent

import (
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ChicagoHAI/idea-explorer/logger"
)

// warnIfMemoryLow logs a warning when available memory is below the
// threshold before launching an agent. Agents routinely spawn compilers
// and notebooks; starting one on a starved host tends to fail hours in.
func warnIfMemoryLow(minAvailableMB int) {
	if minAvailableMB <= 0 {
		return
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		logger.Debugw("could not read memory stats", logger.FieldError, err)
		return
	}
	availMB := vm.Available / (1024 * 1024)
	if availMB < uint64(minAvailableMB) {
		logger.Warnw("low available memory before agent launch",
			"available_mb", availMB,
			"threshold_mb", minAvailableMB)
	}
}
