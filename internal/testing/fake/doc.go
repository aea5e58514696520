// Package fake provides in-memory implementations of the agent's capability
// interfaces for tests.
//
// Controller, Bridges and Devices record every call they receive so tests can
// assert on exactly which mutations and reports the agent issued. Errors can
// be injected per call type.
package fake
