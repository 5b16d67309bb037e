// Package supervisor runs the device-communication control loop.
//
// A Supervisor owns a device registry and two transport handlers, one
// serial (Modbus RTU) and one TCP. Start opens both transports and spawns
// the polling loop; a transport that fails to open leaves the supervisor
// in degraded operation on the other one, unless the configuration
// requires at least one open transport.
//
// # Control Loop
//
// The loop ticks at a fixed interval. Each tick advances every enabled
// device in the registry and nudges both transport workers. Workers run
// handler housekeeping and, when a transport has gone down, attempt to
// reopen it on an exponential backoff schedule. A slow or dead transport
// never stalls the tick loop or the other transport.
//
// # Lifecycle
//
//	UNINITIALIZED → INITIALIZING → RUNNING → SHUTTING_DOWN → STOPPED
//
// Stopped is terminal; a supervisor is not restartable. Stop is safe to
// call from any goroutine and repeat calls are no-ops. Run combines
// Start, waiting for cancellation or a configured bound, and Stop.
package supervisor
