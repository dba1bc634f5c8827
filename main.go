package main

import "github.com/amosdev/attendance/cmd"

func main() {
	cmd.Execute()
}
