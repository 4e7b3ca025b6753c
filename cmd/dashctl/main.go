package main

import "commerce-insights/internal/cmd"

func main() {
	cmd.Execute()
}
