package main

import "vanrank/cmd"

func main() {
	cmd.Execute()
}
