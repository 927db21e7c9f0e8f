package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// ErrNoDevice is returned when no input device matches.
var ErrNoDevice = errors.New("no matching audio input device")

// Init initializes PortAudio. Every successful call must be paired with Terminate.
func Init() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate releases PortAudio.
func Terminate() {
	if err := portaudio.Terminate(); err != nil {
		slog.Error("Failed to terminate PortAudio", "error", err)
	}
}

// Devices lists the devices that can record.
func Devices() ([]portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	inputDevices := make([]portaudio.DeviceInfo, 0)
	for _, device := range devices {
		if device.MaxInputChannels > 0 {
			inputDevices = append(inputDevices, *device)
		}
	}

	return inputDevices, nil
}

// FindInputDevice returns the default input device when name is empty,
// otherwise the first input device whose name contains name.
func FindInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	needle := strings.ToLower(name)
	for _, device := range devices {
		if device.MaxInputChannels == 0 {
			continue
		}
		if strings.Contains(strings.ToLower(device.Name), needle) {
			return device, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoDevice, name)
}

// DevicePermissions answers capability checks by probing for devices.
// Without an OS consent prompt on this platform, access means "a device
// that can be opened exists".
type DevicePermissions struct {
	MicrophoneDevice string
	SystemDevice     string
}

func (p DevicePermissions) HasMicrophoneAccess(ctx context.Context) bool {
	device, err := FindInputDevice(p.MicrophoneDevice)
	if err != nil {
		slog.Warn("Microphone unavailable", "error", err)
		return false
	}
	slog.Debug("Microphone available", "device", device.Name)
	return true
}

func (p DevicePermissions) HasCaptureAccess(ctx context.Context) bool {
	if p.SystemDevice == "" {
		slog.Warn("No system audio source configured")
		return false
	}
	device, err := FindInputDevice(p.SystemDevice)
	if err != nil {
		slog.Warn("System audio source unavailable", "error", err)
		return false
	}
	slog.Debug("System audio source available", "device", device.Name)
	return true
}
