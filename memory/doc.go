// Package memory
// Author: momentics <momentics@gmail.com>
//
// Memory facade and the system-backed allocator strategies for hioload-rt.
//
// Every runtime component allocates through a Facade: the calling thread's
// local allocator when one is installed, otherwise the process-wide global
// allocator, otherwise the system allocator with the block remembered in a
// pending table so a later global allocator can adopt it via Transfer.
//
// Components receive their Facade explicitly. Default() and the package-level
// helpers exist for boundary call sites that have no handle to thread through.
//
// Pooled and arena strategies live in the pool and arena packages.
package memory
