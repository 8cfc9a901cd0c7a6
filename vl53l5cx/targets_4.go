//go:build vl53l5cx_targets4

package vl53l5cx

const TargetsPerZone = 4
