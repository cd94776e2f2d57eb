//go:build windows

package sysinfo

import (
	"context"
	"strings"

	"github.com/yusufpapurcu/wmi"
)

type win32VideoController struct {
	Name string
}

type win32DiskDrive struct {
	Model string
	Size  uint64
}

// GPUs lists display adapters from Win32_VideoController.
func (platformSource) GPUs(ctx context.Context) ([]string, error) {
	var controllers []win32VideoController
	if err := wmi.Query("SELECT Name FROM Win32_VideoController", &controllers); err != nil {
		return nil, err
	}

	var names []string
	for _, c := range controllers {
		if name := strings.TrimSpace(c.Name); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// PhysicalDisks lists fixed drives from Win32_DiskDrive.
func (platformSource) PhysicalDisks(ctx context.Context) ([]PhysicalDisk, error) {
	var drives []win32DiskDrive
	err := wmi.Query("SELECT Model, Size FROM Win32_DiskDrive WHERE MediaType='Fixed hard disk media'", &drives)
	if err != nil {
		return nil, err
	}

	disks := make([]PhysicalDisk, 0, len(drives))
	for _, d := range drives {
		disks = append(disks, PhysicalDisk{Model: strings.TrimSpace(d.Model), SizeBytes: d.Size})
	}
	return disks, nil
}
