// Package loop provides functions for claiming and releasing Linux loop devices.
package loop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unsafe"

	retry "github.com/avast/retry-go/v5"
	"github.com/containerd/log"
	"golang.org/x/sys/unix"
)

// Loop device ioctl constants from <linux/loop.h>
const (
	loopSetFd       = 0x4C00
	loopClrFd       = 0x4C01
	loopSetStatus64 = 0x4C04
	loopGetStatus64 = 0x4C05
	loopCtlGetFree  = 0x4C82
)

// The kernel may defer LOOP_CLR_FD until the last opener goes away,
// which right after an unmount can take a moment.
const (
	releaseAttempts = 20
	releaseDelay    = 50 * time.Millisecond
)

// Acquire claims an unused loop device and binds the provisioner's image to it.
// Any failure is returned as an *AcquireError; nothing is retried.
func (p *Provisioner) Acquire() (*Device, error) {
	return setup(p.controlPath(), p.imagePath())
}

// Release unbinds a device returned by Acquire and waits for the kernel to
// drop the binding.
func (p *Provisioner) Release(ctx context.Context, d *Device) error {
	if d == nil || !d.Bound {
		return nil
	}
	if err := d.Detach(); err != nil {
		return err
	}
	d.Bound = false

	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(releaseAttempts),
		retry.Delay(releaseDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	).Do(func() error {
		_, err := d.GetInfo()
		switch {
		case err == nil:
			return fmt.Errorf("%s is still bound to %s", d.Path, d.BackingFile)
		case errors.Is(err, unix.ENXIO), errors.Is(err, os.ErrNotExist):
			return nil
		default:
			return retry.Unrecoverable(err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to release %s: %w", d.Path, err)
	}

	log.G(ctx).WithField("device", d.Path).Debug("loop device released")
	return nil
}

func setup(ctlPath, backingFile string) (*Device, error) {
	ctlFd, err := unix.Open(ctlPath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &AcquireError{Stage: StageControl, Path: ctlPath, Cause: err}
	}
	defer unix.Close(ctlFd)

	devNum, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(ctlFd), loopCtlGetFree, 0)
	if errno != 0 {
		return nil, &AcquireError{Stage: StageGetFree, Path: ctlPath, Cause: errno}
	}
	loopPath := devicePath(int(devNum))

	loopFd, err := unix.Open(loopPath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &AcquireError{Stage: StageOpenDevice, Path: loopPath, Cause: err}
	}
	defer unix.Close(loopFd)

	backingFd, err := unix.Open(backingFile, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &AcquireError{Stage: StageOpenImage, Path: backingFile, Cause: err}
	}
	defer unix.Close(backingFd)

	_, _, errno = unix.Syscall(unix.SYS_IOCTL, uintptr(loopFd), loopSetFd, uintptr(backingFd))
	if errno != 0 {
		return nil, &AcquireError{Stage: StageBind, Path: loopPath, Cause: errno}
	}

	var info LoopInfo64
	// Truncated to 64 bytes by the kernel ABI.
	copy(info.FileName[:], backingFile)

	_, _, errno = unix.Syscall(unix.SYS_IOCTL, uintptr(loopFd), loopSetStatus64, uintptr(unsafe.Pointer(&info)))
	if errno != 0 {
		unix.Syscall(unix.SYS_IOCTL, uintptr(loopFd), loopClrFd, 0)
		return nil, &AcquireError{Stage: StageStatus, Path: loopPath, Cause: errno}
	}

	return &Device{
		Path:        loopPath,
		Number:      int(devNum),
		BackingFile: backingFile,
		Bound:       true,
	}, nil
}

// GetInfo retrieves the current status of the loop device.
func (d *Device) GetInfo() (*LoopInfo64, error) {
	loopFd, err := unix.Open(d.Path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open loop device %s: %w", d.Path, err)
	}
	defer unix.Close(loopFd)

	var info LoopInfo64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(loopFd), loopGetStatus64, uintptr(unsafe.Pointer(&info)))
	if errno != 0 {
		return nil, fmt.Errorf("LOOP_GET_STATUS64 failed for %s: %w", d.Path, errno)
	}

	return &info, nil
}

// Detach clears the backing file of the loop device.
// Returns nil if the device is already detached.
func (d *Device) Detach() error {
	return DetachPath(d.Path)
}

// DetachPath detaches a loop device by its path.
// Returns nil if the device doesn't exist or is already detached.
func DetachPath(loopPath string) error {
	if loopPath == "" {
		return nil
	}

	loopFd, err := unix.Open(loopPath, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil
		}
		return fmt.Errorf("failed to open loop device %s: %w", loopPath, err)
	}
	defer unix.Close(loopFd)

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(loopFd), loopClrFd, 0)
	if errno != 0 && errno != unix.ENXIO {
		// ENXIO means device not configured
		return fmt.Errorf("LOOP_CLR_FD failed for %s: %w", loopPath, errno)
	}

	return nil
}

// FindByBackingFile finds a loop device bound to the given backing file.
// Returns nil if no loop device is found.
func FindByBackingFile(backingFile string) (*Device, error) {
	absPath, err := filepath.Abs(backingFile)
	if err != nil {
		absPath = backingFile
	}

	entries, err := os.ReadDir("/sys/block")
	if err != nil {
		return nil, fmt.Errorf("failed to read /sys/block: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "loop") {
			continue
		}

		data, err := os.ReadFile(filepath.Join("/sys/block", name, "loop", "backing_file"))
		if err != nil {
			continue // not configured
		}

		bound := strings.TrimSuffix(string(data), "\n")
		if bound == absPath || bound == backingFile {
			var devNum int
			if _, err := fmt.Sscanf(name, "loop%d", &devNum); err != nil {
				continue
			}
			return &Device{
				Path:        "/dev/" + name,
				Number:      devNum,
				BackingFile: bound,
				Bound:       true,
			}, nil
		}
	}

	return nil, nil
}
