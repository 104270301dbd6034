package main

import "mediadupes/cmd"

func main() {
	cmd.Execute()
}
