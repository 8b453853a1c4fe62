package signalling

import (
	"os"
	"strconv"
	"strings"
	"syscall"
)

// thermalZonePaths are read in millidegrees per §4.H; thermal_zone0 is
// treated as the CPU sensor and thermal_zone1 as the GPU sensor, matching
// the two-zone layout on the appliance's SoC.
var thermalZonePaths = [2]string{
	"/sys/class/thermal/thermal_zone0/temp",
	"/sys/class/thermal/thermal_zone1/temp",
}

func readThermalZone(path string) float64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return float64(milli) / 1000
}

// rootVolumeUsedPercent stats the root filesystem via statfs, matching
// what `df /` reports as percent used.
func rootVolumeUsedPercent() float64 {
	var stat syscall.Statfs_t
	if err := syscall.Statfs("/", &stat); err != nil {
		return 0
	}
	if stat.Blocks == 0 {
		return 0
	}
	used := stat.Blocks - stat.Bfree
	return float64(used) / float64(stat.Blocks) * 100
}

func sampleTelemetry(recStatus bool) ([]byte, error) {
	cpuTemp := readThermalZone(thermalZonePaths[0])
	gpuTemp := readThermalZone(thermalZonePaths[1])
	usedPct := rootVolumeUsedPercent()
	return buildCamStatus(recStatus, cpuTemp, gpuTemp, usedPct)
}
