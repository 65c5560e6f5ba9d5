package main

import "github.com/ducktap-game/ducktap/internal/cli"

func main() {
	cli.Execute()
}
