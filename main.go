package main

import "donasiku_backend/internals/commands"

func main() {
	commands.Execute()
}
