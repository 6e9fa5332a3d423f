package main

import "github.com/josephlewis42/npcsh/cmd"

func main() {
	cmd.Execute()
}
