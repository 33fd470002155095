// Package device defines the capture hardware boundary: the static catalog
// of cameras and their advertised formats, the refcounted frame buffers that
// flow out of a streaming device, and the Driver interface every hardware
// backend implements.
//
// Frames inside the process are always packed RGBA; drivers convert at the
// edge. Nothing above the Driver interface touches ioctls or child
// processes.
package device
