package main

import "conferencebot/internal/cli"

func main() {
	cli.Execute()
}
