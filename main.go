package main

import (
	"wisdomwalk/app"
)

func main() {
	app.Run()
}
