package main

import "seatnext/internal/cli"

func main() {
	cli.Execute()
}
