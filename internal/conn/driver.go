package conn

// DriverInfo describes the compiled-in SQLite driver.
type DriverInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Package string `json:"package"`
}

// Driver reports which SQLite driver this binary was built with.
func Driver() DriverInfo {
	return DriverInfo{Name: driverName, Type: driverType, Package: driverPackage}
}
