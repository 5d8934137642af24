package main

import "helpdesk-mail-go/internal/app"

func main() {
	app.Execute()
}
