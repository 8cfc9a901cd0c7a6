package vl53l5cx

import (
	"fmt"
)

// configuration owns the engine-side handles of one sensor. The motion
// handle is allocated on first use and always released before the main one.
type configuration struct {
	engine    Engine
	handle    Handle
	motion    MotionHandle
	hasMotion bool
	released  bool
}

func newConfiguration(engine Engine, address byte, platform *Platform) (*configuration, error) {
	h, err := engine.NewConfiguration(address<<1, platform)
	if err != nil {
		return nil, fmt.Errorf("could not allocate configuration: %w", err)
	}
	return &configuration{engine: engine, handle: h}, nil
}

func (c *configuration) motionHandle() (MotionHandle, error) {
	if c.hasMotion {
		return c.motion, nil
	}
	m, err := c.engine.NewMotionConfiguration()
	if err != nil {
		return 0, fmt.Errorf("could not allocate motion configuration: %w", err)
	}
	c.motion = m
	c.hasMotion = true
	return m, nil
}

func (c *configuration) release() {
	if c == nil || c.released {
		return
	}
	if c.hasMotion {
		c.engine.FreeMotionConfiguration(c.motion)
		c.hasMotion = false
	}
	c.engine.FreeConfiguration(c.handle)
	c.released = true
}
