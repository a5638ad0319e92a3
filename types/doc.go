// Package types provides shared type definitions for the serving
// controller. It is the lowest-level package in the module and must
// not depend on any other internal package.
package types
