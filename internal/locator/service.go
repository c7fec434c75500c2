package locator

import "errors"

// ServiceName is the Windows service registered by the WireSock package.
const ServiceName = "wiresock-client-service"

var ErrUnsupported = errors.New("service check is only available on windows")

// ServiceInstalled reports whether the service name is registered with the
// service control manager.
func ServiceInstalled(name string) (bool, error) {
	return serviceInstalled(name)
}
