//go:build !unix

package ants

import "os/exec"

func setProcessGroup(_ *exec.Cmd) {}
