//go:build !linux

package mounts

const defaultMountsFile = ""
