/*
Package main is a thin example host for the gateway library (SPEC_FULL
§6.1): it loads Settings from the environment, wires the three provider
adapters and the Router, and exposes a single /generate HTTP endpoint.
It is a runnable integration harness, not part of the library's public
contract — callers are expected to import package gateway directly.
*/
package main
