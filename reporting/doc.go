// Package reporting turns drained report fragments into the JUnit document,
// the console transcript and the end of run summary.
package reporting
