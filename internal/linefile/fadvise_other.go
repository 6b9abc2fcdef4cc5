//go:build !linux

package linefile

import "os"

func adviseSequential(*os.File) {}
