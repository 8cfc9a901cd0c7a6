//go:build !vl53l5cx_targets2 && !vl53l5cx_targets3 && !vl53l5cx_targets4

package vl53l5cx

// TargetsPerZone is the number of targets the engine reports per zone. It has
// to match VL53L5CX_NB_TARGET_PER_ZONE of the engine build; select other
// values with the vl53l5cx_targets2, vl53l5cx_targets3 or vl53l5cx_targets4
// build tags.
const TargetsPerZone = 1
