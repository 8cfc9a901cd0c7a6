//go:build darwin || (linux && (amd64 || arm64))

package uld

import (
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/mklimuk/tof/vl53l5cx"
)

var _ vl53l5cx.Engine = &Engine{}

type (
	getFn    func(cfg uintptr, out *uint8) uint8
	setFn    func(cfg uintptr, v uint8) uint8
	cfgFn    func(cfg uintptr) uint8
	getU32Fn func(cfg uintptr, out *uint32) uint8
	setU32Fn func(cfg uintptr, v uint32) uint8
)

// binding keeps the callbacks of one configuration reachable. purego
// callbacks are never freed, so each configuration costs three of the
// process-wide callback slots.
type binding struct {
	platform *vl53l5cx.Platform
	read     uintptr
	write    uintptr
	sleep    uintptr
}

// Engine calls into the vendor driver library.
type Engine struct {
	lib         uintptr
	resultsSize int

	getConfiguration           func(addr uint8, read, write, sleep uintptr) uintptr
	cleanupConfiguration       func(cfg uintptr)
	getMotionConfiguration     func() uintptr
	cleanupMotionConfiguration func(motion uintptr)

	isAlive               getFn
	init                  cfgFn
	setI2CAddress         func(cfg uintptr, addr uint16) uint8
	getPowerMode          getFn
	setPowerMode          setFn
	startRanging          cfgFn
	stopRanging           cfgFn
	checkDataReady        getFn
	getRangingData        func(cfg uintptr, results *byte) uint8
	getResolution         getFn
	setResolution         setFn
	getRangingFrequencyHz getFn
	setRangingFrequencyHz setFn
	getIntegrationTimeMs  getU32Fn
	setIntegrationTimeMs  setU32Fn
	getSharpenerPercent   getFn
	setSharpenerPercent   setFn
	getTargetOrder        getFn
	setTargetOrder        setFn
	getRangingMode        getFn
	setRangingMode        setFn
	motionIndicatorInit   func(cfg, motion uintptr, resolution uint8) uint8
	motionSetDistance     func(cfg, motion uintptr, min, max uint16) uint8

	mu       sync.Mutex
	bindings map[vl53l5cx.Handle]*binding
}

// Open loads the driver library at path (see LibraryPath).
func Open(path string) (_ *Engine, err error) {
	path = LibraryPath(path)
	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrLoad, path, err)
	}
	// RegisterLibFunc panics on missing symbols
	defer func() {
		if r := recover(); r != nil {
			_ = purego.Dlclose(lib)
			err = fmt.Errorf("%w %s: %v", ErrLoad, path, r)
		}
	}()
	e := &Engine{lib: lib, bindings: map[vl53l5cx.Handle]*binding{}}
	purego.RegisterLibFunc(&e.getConfiguration, lib, "get_configuration")
	purego.RegisterLibFunc(&e.cleanupConfiguration, lib, "cleanup_configuration")
	purego.RegisterLibFunc(&e.getMotionConfiguration, lib, "get_motion_configuration")
	purego.RegisterLibFunc(&e.cleanupMotionConfiguration, lib, "cleanup_motion_configuration")

	purego.RegisterLibFunc(&e.isAlive, lib, "vl53l5cx_is_alive")
	purego.RegisterLibFunc(&e.init, lib, "vl53l5cx_init")
	purego.RegisterLibFunc(&e.setI2CAddress, lib, "vl53l5cx_set_i2c_address")
	purego.RegisterLibFunc(&e.getPowerMode, lib, "vl53l5cx_get_power_mode")
	purego.RegisterLibFunc(&e.setPowerMode, lib, "vl53l5cx_set_power_mode")
	purego.RegisterLibFunc(&e.startRanging, lib, "vl53l5cx_start_ranging")
	purego.RegisterLibFunc(&e.stopRanging, lib, "vl53l5cx_stop_ranging")
	purego.RegisterLibFunc(&e.checkDataReady, lib, "vl53l5cx_check_data_ready")
	purego.RegisterLibFunc(&e.getRangingData, lib, "vl53l5cx_get_ranging_data")
	purego.RegisterLibFunc(&e.getResolution, lib, "vl53l5cx_get_resolution")
	purego.RegisterLibFunc(&e.setResolution, lib, "vl53l5cx_set_resolution")
	purego.RegisterLibFunc(&e.getRangingFrequencyHz, lib, "vl53l5cx_get_ranging_frequency_hz")
	purego.RegisterLibFunc(&e.setRangingFrequencyHz, lib, "vl53l5cx_set_ranging_frequency_hz")
	purego.RegisterLibFunc(&e.getIntegrationTimeMs, lib, "vl53l5cx_get_integration_time_ms")
	purego.RegisterLibFunc(&e.setIntegrationTimeMs, lib, "vl53l5cx_set_integration_time_ms")
	purego.RegisterLibFunc(&e.getSharpenerPercent, lib, "vl53l5cx_get_sharpener_percent")
	purego.RegisterLibFunc(&e.setSharpenerPercent, lib, "vl53l5cx_set_sharpener_percent")
	purego.RegisterLibFunc(&e.getTargetOrder, lib, "vl53l5cx_get_target_order")
	purego.RegisterLibFunc(&e.setTargetOrder, lib, "vl53l5cx_set_target_order")
	purego.RegisterLibFunc(&e.getRangingMode, lib, "vl53l5cx_get_ranging_mode")
	purego.RegisterLibFunc(&e.setRangingMode, lib, "vl53l5cx_set_ranging_mode")
	purego.RegisterLibFunc(&e.motionIndicatorInit, lib, "vl53l5cx_motion_indicator_init")
	purego.RegisterLibFunc(&e.motionSetDistance, lib, "vl53l5cx_motion_indicator_set_distance_motion")

	if sym, err := purego.Dlsym(lib, "get_results_size"); err == nil && sym != 0 {
		var resultsSize func() uint32
		purego.RegisterFunc(&resultsSize, sym)
		e.resultsSize = int(resultsSize())
	}
	slog.Debug("driver library loaded", "path", path, "results size", e.resultsSize)
	return e, nil
}

// Close unloads the library. Every configuration must be freed first.
func (e *Engine) Close() error {
	e.mu.Lock()
	live := len(e.bindings)
	e.mu.Unlock()
	if live > 0 {
		return fmt.Errorf("uld: %d configurations still allocated", live)
	}
	return purego.Dlclose(e.lib)
}

func (e *Engine) ResultsSize() int {
	return e.resultsSize
}

func (e *Engine) NewConfiguration(address uint8, platform *vl53l5cx.Platform) (vl53l5cx.Handle, error) {
	b := &binding{platform: platform}
	b.read = purego.NewCallback(func(addr uint8, reg uint16, data *uint8, length uint32) int32 {
		return int32(b.platform.Read(addr, reg, unsafe.Slice(data, length)))
	})
	b.write = purego.NewCallback(func(addr uint8, reg uint16, data *uint8, length uint32) int32 {
		return int32(b.platform.Write(addr, reg, unsafe.Slice(data, length)))
	})
	b.sleep = purego.NewCallback(func(ms uint32) int32 {
		return int32(b.platform.Sleep(ms))
	})
	cfg := e.getConfiguration(address, b.read, b.write, b.sleep)
	if cfg == 0 {
		return 0, fmt.Errorf("uld: get_configuration returned NULL")
	}
	h := vl53l5cx.Handle(cfg)
	e.mu.Lock()
	e.bindings[h] = b
	e.mu.Unlock()
	return h, nil
}

func (e *Engine) FreeConfiguration(h vl53l5cx.Handle) {
	e.cleanupConfiguration(uintptr(h))
	e.mu.Lock()
	delete(e.bindings, h)
	e.mu.Unlock()
}

func (e *Engine) NewMotionConfiguration() (vl53l5cx.MotionHandle, error) {
	m := e.getMotionConfiguration()
	if m == 0 {
		return 0, fmt.Errorf("uld: get_motion_configuration returned NULL")
	}
	return vl53l5cx.MotionHandle(m), nil
}

func (e *Engine) FreeMotionConfiguration(m vl53l5cx.MotionHandle) {
	e.cleanupMotionConfiguration(uintptr(m))
}

func get(fn getFn, h vl53l5cx.Handle) (uint8, vl53l5cx.Status) {
	var v uint8
	st := fn(uintptr(h), &v)
	return v, vl53l5cx.Status(st)
}

func (e *Engine) IsAlive(h vl53l5cx.Handle) (bool, vl53l5cx.Status) {
	v, st := get(e.isAlive, h)
	return v == 1, st
}

func (e *Engine) Init(h vl53l5cx.Handle) vl53l5cx.Status {
	return vl53l5cx.Status(e.init(uintptr(h)))
}

func (e *Engine) SetI2CAddress(h vl53l5cx.Handle, address uint16) vl53l5cx.Status {
	return vl53l5cx.Status(e.setI2CAddress(uintptr(h), address))
}

func (e *Engine) GetPowerMode(h vl53l5cx.Handle) (vl53l5cx.PowerMode, vl53l5cx.Status) {
	v, st := get(e.getPowerMode, h)
	return vl53l5cx.PowerMode(v), st
}

func (e *Engine) SetPowerMode(h vl53l5cx.Handle, mode vl53l5cx.PowerMode) vl53l5cx.Status {
	return vl53l5cx.Status(e.setPowerMode(uintptr(h), uint8(mode)))
}

func (e *Engine) StartRanging(h vl53l5cx.Handle) vl53l5cx.Status {
	return vl53l5cx.Status(e.startRanging(uintptr(h)))
}

func (e *Engine) StopRanging(h vl53l5cx.Handle) vl53l5cx.Status {
	return vl53l5cx.Status(e.stopRanging(uintptr(h)))
}

func (e *Engine) CheckDataReady(h vl53l5cx.Handle) (bool, vl53l5cx.Status) {
	v, st := get(e.checkDataReady, h)
	return v != 0, st
}

// GetRangingData lets the driver fill results in place.
func (e *Engine) GetRangingData(h vl53l5cx.Handle, results []byte) vl53l5cx.Status {
	if len(results) == 0 || (e.resultsSize != 0 && len(results) < e.resultsSize) {
		return vl53l5cx.StatusInvalidParam
	}
	return vl53l5cx.Status(e.getRangingData(uintptr(h), &results[0]))
}

func (e *Engine) GetResolution(h vl53l5cx.Handle) (vl53l5cx.Resolution, vl53l5cx.Status) {
	v, st := get(e.getResolution, h)
	return vl53l5cx.Resolution(v), st
}

func (e *Engine) SetResolution(h vl53l5cx.Handle, r vl53l5cx.Resolution) vl53l5cx.Status {
	return vl53l5cx.Status(e.setResolution(uintptr(h), uint8(r)))
}

func (e *Engine) GetRangingFrequencyHz(h vl53l5cx.Handle) (uint8, vl53l5cx.Status) {
	return get(e.getRangingFrequencyHz, h)
}

func (e *Engine) SetRangingFrequencyHz(h vl53l5cx.Handle, hz uint8) vl53l5cx.Status {
	return vl53l5cx.Status(e.setRangingFrequencyHz(uintptr(h), hz))
}

func (e *Engine) GetIntegrationTimeMs(h vl53l5cx.Handle) (uint32, vl53l5cx.Status) {
	var ms uint32
	st := e.getIntegrationTimeMs(uintptr(h), &ms)
	return ms, vl53l5cx.Status(st)
}

func (e *Engine) SetIntegrationTimeMs(h vl53l5cx.Handle, ms uint32) vl53l5cx.Status {
	return vl53l5cx.Status(e.setIntegrationTimeMs(uintptr(h), ms))
}

func (e *Engine) GetSharpenerPercent(h vl53l5cx.Handle) (uint8, vl53l5cx.Status) {
	return get(e.getSharpenerPercent, h)
}

func (e *Engine) SetSharpenerPercent(h vl53l5cx.Handle, percent uint8) vl53l5cx.Status {
	return vl53l5cx.Status(e.setSharpenerPercent(uintptr(h), percent))
}

func (e *Engine) GetTargetOrder(h vl53l5cx.Handle) (vl53l5cx.TargetOrder, vl53l5cx.Status) {
	v, st := get(e.getTargetOrder, h)
	return vl53l5cx.TargetOrder(v), st
}

func (e *Engine) SetTargetOrder(h vl53l5cx.Handle, order vl53l5cx.TargetOrder) vl53l5cx.Status {
	return vl53l5cx.Status(e.setTargetOrder(uintptr(h), uint8(order)))
}

func (e *Engine) GetRangingMode(h vl53l5cx.Handle) (vl53l5cx.RangingMode, vl53l5cx.Status) {
	v, st := get(e.getRangingMode, h)
	return vl53l5cx.RangingMode(v), st
}

func (e *Engine) SetRangingMode(h vl53l5cx.Handle, mode vl53l5cx.RangingMode) vl53l5cx.Status {
	return vl53l5cx.Status(e.setRangingMode(uintptr(h), uint8(mode)))
}

func (e *Engine) MotionIndicatorInit(h vl53l5cx.Handle, m vl53l5cx.MotionHandle, r vl53l5cx.Resolution) vl53l5cx.Status {
	return vl53l5cx.Status(e.motionIndicatorInit(uintptr(h), uintptr(m), uint8(r)))
}

func (e *Engine) MotionIndicatorSetDistance(h vl53l5cx.Handle, m vl53l5cx.MotionHandle, minMM, maxMM uint16) vl53l5cx.Status {
	return vl53l5cx.Status(e.motionSetDistance(uintptr(h), uintptr(m), minMM, maxMM))
}
