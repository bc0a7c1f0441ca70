package main

import (
	"github.com/ColonelBlimp/beatdetector/cmd"
	"github.com/ColonelBlimp/beatdetector/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
