//go:build !windows

package locator

func serviceInstalled(string) (bool, error) {
	return false, ErrUnsupported
}
