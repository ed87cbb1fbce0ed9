// Package testsupport provides shared fixtures for package tests: temp
// directory configs and opened state stores.
package testsupport
