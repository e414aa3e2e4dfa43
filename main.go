package main

import (
	"github.com/brainzab/mranatoly-bot/cmd"
)

func main() {
	cmd.Execute()
}
