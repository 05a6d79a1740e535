package main

import "lifesignal-backend/cmd"

func main() {
	cmd.Run()
}
