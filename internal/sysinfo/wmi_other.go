//go:build !windows

package sysinfo

import "context"

// GPUs is not collected outside Windows.
func (platformSource) GPUs(ctx context.Context) ([]string, error) {
	return nil, nil
}

// PhysicalDisks is not collected outside Windows.
func (platformSource) PhysicalDisks(ctx context.Context) ([]PhysicalDisk, error) {
	return nil, nil
}
