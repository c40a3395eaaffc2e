// Package exitcodes defines the standard exit codes used by bettertest.
package exitcodes

// Exit code constants used by bettertest
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every test case passes
// * TestFailure (1): Used when one or more test cases fail at any stage
// * RuntimeErr (2): Used for configuration errors, toolchain build failures, panics and interrupts
const (
	Success     = 0 // All test cases pass
	TestFailure = 1 // Test case failures
	RuntimeErr  = 2 // Runtime errors
)
