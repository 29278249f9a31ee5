package capture

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	PermissionDenied ErrorKind = iota + 1
	DeviceNotFound
	DeviceBusy
	DeviceUnsupported
	FileTypeRejected
	FileTooLarge
	EncodeFailed
	FileUnreadable
)

func (k ErrorKind) String() string {
	switch k {
	case PermissionDenied:
		return "permission_denied"
	case DeviceNotFound:
		return "device_not_found"
	case DeviceBusy:
		return "device_busy"
	case DeviceUnsupported:
		return "device_unsupported"
	case FileTypeRejected:
		return "file_type_rejected"
	case FileTooLarge:
		return "file_too_large"
	case EncodeFailed:
		return "encode_failed"
	case FileUnreadable:
		return "file_unreadable"
	default:
		return "unknown"
	}
}

// Camera implementations wrap these so the session can classify failures.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrDeviceNotFound   = errors.New("no camera found")
	ErrDeviceBusy       = errors.New("camera already in use")
)

var (
	ErrNotReady          = errors.New("camera stream is not ready")
	ErrClosed            = errors.New("capture session is closed")
	ErrInvalidTransition = errors.New("action not allowed in current mode")
)

// Error is a recoverable capture failure. Message is shown to the user.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Message returns the user-facing description of the failure.
func (e *Error) Message() string {
	switch e.Kind {
	case PermissionDenied:
		return "Camera permission was denied. Allow camera access or upload a file instead."
	case DeviceNotFound:
		return "No camera was found. Upload a file instead."
	case DeviceBusy:
		return "The camera is already in use by another application."
	case FileTypeRejected:
		return "Please select an image (JPG, PNG, WebP) or PDF file."
	case FileTooLarge:
		return "File size must be less than 10MB."
	case EncodeFailed:
		return "Could not capture the photo. Please try again."
	case FileUnreadable:
		return "Could not read the selected file."
	default:
		return "Unable to access camera. Please check permissions or use file upload."
	}
}

// classifyCameraError maps a device acquisition failure to its kind.
func classifyCameraError(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return PermissionDenied
	case errors.Is(err, ErrDeviceNotFound):
		return DeviceNotFound
	case errors.Is(err, ErrDeviceBusy):
		return DeviceBusy
	default:
		return DeviceUnsupported
	}
}
