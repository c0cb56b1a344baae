// +build windows

package diskstore

// Fill measurement is not implemented on windows; report "has room".
func usagePercent(root string) float64 {
	return 0
}
