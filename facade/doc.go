// Package facade
// Author: momentics <momentics@gmail.com>
//
// Single entry point for hioload-rt: Config groups the scheduler, pool and
// arena sections and selects the global allocator; Runtime wires them with
// the control surface and owns their lifecycle.
package facade
