package main

import "landmash/cmd/landmash/cmd"

func main() {
	cmd.Execute()
}
