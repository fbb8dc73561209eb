//go:build tools
// +build tools

// Package tools pins code generators invoked through go:generate.
package tools

import (
	_ "go.uber.org/mock/mockgen"
)
