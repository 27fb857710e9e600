package main

import "slackmemory/internal/app/server"

func main() {
	server.Run()
}
