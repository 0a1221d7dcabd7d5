package main

import "dbtkit/cmd"

func main() {
	cmd.Execute()
}
