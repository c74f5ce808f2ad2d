//go:build windows

package models

import "golang.org/x/sys/windows"

// statDisk returns the total and available bytes of the volume holding path.
func statDisk(path string) (uint64, uint64, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, 0, err
	}
	var freeToCaller, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &freeToCaller, &total, &totalFree); err != nil {
		return 0, 0, err
	}
	return total, freeToCaller, nil
}
