package main

import "github.com/1evgeniyonegin1-gif/plamya-sub002/internal/app"

func main() {
	app.Run()
}
