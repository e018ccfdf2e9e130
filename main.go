package main

import "anon-social-backend/cmd"

func main() {
	cmd.Run()
}
