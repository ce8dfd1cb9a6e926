package main

import "archsetup/archsetup/cmd"

func main() {
	cmd.Execute()
}
