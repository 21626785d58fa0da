//go:build !linux

// Package loop provides functions for claiming and releasing Linux loop devices.
package loop

import (
	"context"

	"github.com/containerd/errdefs"
)

// Acquire claims an unused loop device.
func (p *Provisioner) Acquire() (*Device, error) {
	return nil, &AcquireError{Stage: StageControl, Path: p.controlPath(), Cause: errdefs.ErrNotImplemented}
}

// Release unbinds a device returned by Acquire.
func (p *Provisioner) Release(ctx context.Context, d *Device) error {
	return nil
}

// GetInfo retrieves the current status of the loop device.
func (d *Device) GetInfo() (*LoopInfo64, error) {
	return nil, errdefs.ErrNotImplemented
}

// Detach detaches the loop device.
func (d *Device) Detach() error {
	return nil
}

// DetachPath detaches a loop device by its path.
func DetachPath(loopPath string) error {
	return nil
}

// FindByBackingFile finds a loop device bound to the given backing file.
func FindByBackingFile(backingFile string) (*Device, error) {
	return nil, errdefs.ErrNotImplemented
}
