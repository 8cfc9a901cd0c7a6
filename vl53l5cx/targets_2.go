//go:build vl53l5cx_targets2

package vl53l5cx

const TargetsPerZone = 2
