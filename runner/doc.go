// Package runner executes discovered test cases through the toolchain.
//
// The main components are:
//   - Pipeline: runs compile, assemble, link and simulate for one test case and
//     produces exactly one report fragment
//   - ResultChannel: carries fragments from pipeline workers to the single consumer
//   - TestRunner: schedules test cases sequentially or on a worker pool and drains
//     the result channel into a FragmentSink after every completed test
//   - ProgressIndicator: optional periodic progress logging
package runner
