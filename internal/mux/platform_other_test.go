//go:build !linux

package mux

func addPlatform(map[string]factory) {}
