package main

import "AudioDeck/cmd"

func main() {
	cmd.Execute()
}
