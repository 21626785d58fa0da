package loop

import "fmt"

const (
	// DefaultControlPath is the loop control interface.
	DefaultControlPath = "/dev/loop-control"
	// DefaultImagePath is the pre-built ext4 image probes bind to a loop device.
	DefaultImagePath = "/ltp_tst_mnt_fs/tstfs_ext4.img"
)

// LoFlagsReadOnly is LO_FLAGS_READ_ONLY from <linux/loop.h>.
const LoFlagsReadOnly = 1 << 0

// LoopInfo64 is the loop device info structure for LOOP_SET_STATUS64/LOOP_GET_STATUS64.
// This matches the kernel's struct loop_info64 from <linux/loop.h>.
type LoopInfo64 struct {
	Device         uint64
	Inode          uint64
	Rdevice        uint64
	Offset         uint64
	SizeLimit      uint64
	Number         uint32
	EncryptType    uint32
	EncryptKeySize uint32
	Flags          uint32
	FileName       [64]byte
	CryptName      [64]byte
	EncryptKey     [32]byte
	Init           [2]uint64
}

// BackingFile returns the backing file path from the loop device info.
func (info *LoopInfo64) BackingFile() string {
	for i, b := range info.FileName {
		if b == 0 {
			return string(info.FileName[:i])
		}
	}
	return string(info.FileName[:])
}

// Device is a loop block device claimed by the current process.
type Device struct {
	// Path is the device path (e.g., "/dev/loop0").
	Path string
	// Number is the loop device number.
	Number int
	// BackingFile is the file bound to the device.
	BackingFile string
	// Bound reports whether the binding is still owned by this process.
	Bound bool
}

func devicePath(n int) string {
	return fmt.Sprintf("/dev/loop%d", n)
}

// Stage names the step of an acquisition that failed.
type Stage string

const (
	StageControl    Stage = "open control"
	StageGetFree    Stage = "get free slot"
	StageOpenDevice Stage = "open device"
	StageOpenImage  Stage = "open image"
	StageBind       Stage = "bind"
	StageStatus     Stage = "set status"
)

// AcquireError reports which step of claiming a loop device failed.
// There is no retry: the caller decides whether the run can continue.
type AcquireError struct {
	Stage Stage
	Path  string
	Cause error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("loop %s failed for %s: %v", e.Stage, e.Path, e.Cause)
}

func (e *AcquireError) Unwrap() error {
	return e.Cause
}

// Provisioner claims a free loop device and binds a fixed image to it.
type Provisioner struct {
	// ControlPath defaults to DefaultControlPath.
	ControlPath string
	// ImagePath defaults to DefaultImagePath. It is always bound read-write.
	ImagePath string
}

func (p *Provisioner) controlPath() string {
	if p.ControlPath == "" {
		return DefaultControlPath
	}
	return p.ControlPath
}

func (p *Provisioner) imagePath() string {
	if p.ImagePath == "" {
		return DefaultImagePath
	}
	return p.ImagePath
}
