//go:build vl53l5cx_targets3

package vl53l5cx

const TargetsPerZone = 3
