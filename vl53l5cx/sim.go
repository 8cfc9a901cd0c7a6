package vl53l5cx

import (
	"encoding/binary"
	"fmt"
	"sync"
)

var _ Engine = &SimEngine{}

type simConfiguration struct {
	address  uint8
	platform *Platform
	stream   byte
}

// SimEngine is an Engine driving an EmulatedDevice through the same Platform
// callbacks the vendor engine uses. It implements none of the ranging
// algorithms; frames come from the device scene.
type SimEngine struct {
	mu       sync.Mutex
	next     uintptr
	configs  map[Handle]*simConfiguration
	motions  map[MotionHandle]struct{}
	firmware []byte
}

func NewSimEngine() *SimEngine {
	fw := make([]byte, firmwarePages*firmwarePageSize)
	for i := range fw {
		fw[i] = byte(i*31 + i>>8)
	}
	return &SimEngine{
		configs:  map[Handle]*simConfiguration{},
		motions:  map[MotionHandle]struct{}{},
		firmware: fw,
	}
}

// Allocated returns the number of live configurations.
func (e *SimEngine) Allocated() (configurations, motions int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.configs), len(e.motions)
}

func (e *SimEngine) NewConfiguration(address uint8, platform *Platform) (Handle, error) {
	if platform == nil {
		return 0, fmt.Errorf("nil platform")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	h := Handle(e.next)
	e.configs[h] = &simConfiguration{address: address, platform: platform, stream: 0xff}
	return h, nil
}

func (e *SimEngine) FreeConfiguration(h Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.configs, h)
}

func (e *SimEngine) NewMotionConfiguration() (MotionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	m := MotionHandle(e.next)
	e.motions[m] = struct{}{}
	return m, nil
}

func (e *SimEngine) FreeMotionConfiguration(m MotionHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.motions, m)
}

func (e *SimEngine) ResultsSize() int {
	return DefaultLayout.Size()
}

func (e *SimEngine) config(h Handle) *simConfiguration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.configs[h]
}

// callbacks get the 7-bit address, the configuration keeps the 8-bit one
func (c *simConfiguration) read(register uint16, out []byte) Status {
	return c.platform.Read(c.address>>1, register, out)
}

func (c *simConfiguration) write(register uint16, data ...byte) Status {
	return c.platform.Write(c.address>>1, register, data)
}

func (c *simConfiguration) page(p byte) Status {
	return c.write(regPageSelect, p)
}

func (e *SimEngine) IsAlive(h Handle) (bool, Status) {
	c := e.config(h)
	if c == nil {
		return false, StatusInvalidParam
	}
	id := make([]byte, 2)
	st := c.page(pageBoot)
	st |= c.read(regDeviceID, id)
	st |= c.page(pageMain)
	return st == StatusOK && id[0] == deviceID && id[1] == revisionID, st
}

// Init uploads the firmware one page at a time and writes the default
// configuration.
func (e *SimEngine) Init(h Handle) Status {
	c := e.config(h)
	if c == nil {
		return StatusInvalidParam
	}
	var st Status
	for i := 0; i < firmwarePages; i++ {
		st |= c.page(pageFirmware + byte(i))
		st |= c.platform.Write(c.address>>1, 0x0000, e.firmware[i*firmwarePageSize:(i+1)*firmwarePageSize])
		if st != StatusOK {
			return st
		}
	}
	st |= c.page(pageMain)
	st |= c.platform.Sleep(1)
	st |= c.write(regResolution, byte(Resolution4x4))
	st |= c.write(regFrequency, 1)
	st |= c.write(regSharpener, 5)
	st |= c.write(regTargetOrder, byte(TargetOrderStrongest))
	st |= c.write(regRangingMode, byte(RangingModeAutonomous))
	st |= c.write(regPowerMode, byte(PowerModeWakeup))
	st |= c.write(regMotion, 0)
	st |= c.writeUint32(regIntegration, 5)
	return st
}

func (c *simConfiguration) writeUint32(register uint16, v uint32) Status {
	return c.write(register, binary.BigEndian.AppendUint32(nil, v)...)
}

func (c *simConfiguration) readByte(register uint16) (byte, Status) {
	b := make([]byte, 1)
	st := c.read(register, b)
	return b[0], st
}

// SetI2CAddress moves the device; addresses are 8-bit.
func (e *SimEngine) SetI2CAddress(h Handle, address uint16) Status {
	c := e.config(h)
	if c == nil {
		return StatusInvalidParam
	}
	st := c.page(pageBoot)
	st |= c.write(regI2CAddress, byte(address>>1))
	if st != StatusOK {
		return st
	}
	c.address = uint8(address)
	return c.page(pageMain)
}

func (e *SimEngine) getByte(h Handle, register uint16) (byte, Status) {
	c := e.config(h)
	if c == nil {
		return 0, StatusInvalidParam
	}
	return c.readByte(register)
}

func (e *SimEngine) setByte(h Handle, register uint16, v byte) Status {
	c := e.config(h)
	if c == nil {
		return StatusInvalidParam
	}
	return c.write(register, v)
}

func (e *SimEngine) GetPowerMode(h Handle) (PowerMode, Status) {
	v, st := e.getByte(h, regPowerMode)
	return PowerMode(v), st
}

func (e *SimEngine) SetPowerMode(h Handle, mode PowerMode) Status {
	return e.setByte(h, regPowerMode, byte(mode))
}

func (e *SimEngine) StartRanging(h Handle) Status {
	c := e.config(h)
	if c == nil {
		return StatusInvalidParam
	}
	st := c.write(regControl, controlStart)
	status := make([]byte, 4)
	st |= c.read(regStream, status)
	c.stream = status[0]
	return st
}

func (e *SimEngine) StopRanging(h Handle) Status {
	return e.setByte(h, regControl, controlStop)
}

func (e *SimEngine) CheckDataReady(h Handle) (bool, Status) {
	c := e.config(h)
	if c == nil {
		return false, StatusInvalidParam
	}
	status := make([]byte, 4)
	st := c.read(regStream, status)
	if st != StatusOK {
		return false, st
	}
	ready := status[0] != c.stream && status[0] != 0xff && status[1] == streamStatusOK
	if ready {
		c.stream = status[0]
	}
	return ready, StatusOK
}

func (e *SimEngine) GetRangingData(h Handle, results []byte) Status {
	c := e.config(h)
	if c == nil || len(results) != DefaultLayout.Size() {
		return StatusInvalidParam
	}
	return c.read(regResults, results)
}

func (e *SimEngine) GetResolution(h Handle) (Resolution, Status) {
	v, st := e.getByte(h, regResolution)
	return Resolution(v), st
}

func (e *SimEngine) SetResolution(h Handle, r Resolution) Status {
	return e.setByte(h, regResolution, byte(r))
}

func (e *SimEngine) GetRangingFrequencyHz(h Handle) (uint8, Status) {
	return e.getByte(h, regFrequency)
}

func (e *SimEngine) SetRangingFrequencyHz(h Handle, hz uint8) Status {
	return e.setByte(h, regFrequency, hz)
}

func (e *SimEngine) GetIntegrationTimeMs(h Handle) (uint32, Status) {
	c := e.config(h)
	if c == nil {
		return 0, StatusInvalidParam
	}
	b := make([]byte, 4)
	st := c.read(regIntegration, b)
	return binary.BigEndian.Uint32(b), st
}

func (e *SimEngine) SetIntegrationTimeMs(h Handle, ms uint32) Status {
	c := e.config(h)
	if c == nil {
		return StatusInvalidParam
	}
	return c.writeUint32(regIntegration, ms)
}

func (e *SimEngine) GetSharpenerPercent(h Handle) (uint8, Status) {
	return e.getByte(h, regSharpener)
}

func (e *SimEngine) SetSharpenerPercent(h Handle, percent uint8) Status {
	return e.setByte(h, regSharpener, percent)
}

func (e *SimEngine) GetTargetOrder(h Handle) (TargetOrder, Status) {
	v, st := e.getByte(h, regTargetOrder)
	return TargetOrder(v), st
}

func (e *SimEngine) SetTargetOrder(h Handle, order TargetOrder) Status {
	return e.setByte(h, regTargetOrder, byte(order))
}

func (e *SimEngine) GetRangingMode(h Handle) (RangingMode, Status) {
	v, st := e.getByte(h, regRangingMode)
	return RangingMode(v), st
}

func (e *SimEngine) SetRangingMode(h Handle, mode RangingMode) Status {
	return e.setByte(h, regRangingMode, byte(mode))
}

func (e *SimEngine) MotionIndicatorInit(h Handle, m MotionHandle, r Resolution) Status {
	e.mu.Lock()
	_, ok := e.motions[m]
	e.mu.Unlock()
	if !ok {
		return StatusInvalidParam
	}
	return e.setByte(h, regMotion, 1)
}

func (e *SimEngine) MotionIndicatorSetDistance(h Handle, m MotionHandle, minMM, maxMM uint16) Status {
	c := e.config(h)
	if c == nil {
		return StatusInvalidParam
	}
	e.mu.Lock()
	_, ok := e.motions[m]
	e.mu.Unlock()
	if !ok || maxMM < minMM {
		return StatusInvalidParam
	}
	data := binary.BigEndian.AppendUint16(nil, minMM)
	data = binary.BigEndian.AppendUint16(data, maxMM)
	return c.write(regMotionRange, data...)
}
