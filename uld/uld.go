// Package uld loads the vendor ultra lite driver for the VL53L5CX from a
// shared library and exposes it as a vl53l5cx.Engine. No cgo is involved;
// the library is opened with purego.
//
// The library must export the driver entry points (vl53l5cx_init,
// vl53l5cx_get_ranging_data, ...) plus four allocation helpers:
//
//	VL53L5CX_Configuration* get_configuration(uint8_t addr, rd, wr, sleep);
//	void cleanup_configuration(VL53L5CX_Configuration*);
//	VL53L5CX_Motion_Configuration* get_motion_configuration(void);
//	void cleanup_motion_configuration(VL53L5CX_Motion_Configuration*);
//
// Optionally it can export `uint32_t get_results_size(void)` returning
// sizeof(VL53L5CX_ResultsData); the session then refuses to run against a
// library built with a different number of targets per zone.
package uld

import (
	"errors"
	"os"
)

// DefaultLibrary is the library file name looked up when no path is given.
const DefaultLibrary = "libvl53l5cx.so"

// LibraryEnv names the environment variable overriding the library path.
const LibraryEnv = "VL53L5CX_LIBRARY"

var (
	// ErrUnsupported is returned on platforms purego cannot call into.
	ErrUnsupported = errors.New("uld: shared library loading not supported on this platform")
	// ErrLoad is returned when the library or one of its symbols is missing.
	ErrLoad = errors.New("uld: could not load driver library")
)

// LibraryPath resolves the library to open: path if set, then the
// environment, then DefaultLibrary.
func LibraryPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv(LibraryEnv); env != "" {
		return env
	}
	return DefaultLibrary
}
