//go:build !linux

package appendfile

// dropPageCache is a no-op on platforms without fadvise(2).
func (a *AppendFile) dropPageCache() {}
