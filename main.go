package main

import "pabili-backend/cmd"

func main() {
	cmd.Run()
}
