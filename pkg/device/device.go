package device

// Device is a snapshot of one registry entry. Accessors return copies, so a
// Device in caller hands never aliases registry state; all mutation goes
// through registry methods.
type Device struct {
	// ID is the registry-unique device identifier. Positive by caller
	// contract; distinct from the Modbus unit address.
	ID int

	// Name is the display name.
	Name string

	// UnitAddress is the Modbus unit address (1..247 by convention).
	UnitAddress uint8

	// Enabled reports whether the supervisor polls this device.
	Enabled bool

	// Polls counts completed poll ticks for this device.
	Polls uint64
}

// Target is the (device, unit address) pair the protocol layer polls.
type Target struct {
	DeviceID    int
	UnitAddress uint8
}
