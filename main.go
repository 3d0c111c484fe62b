package main

import "github.com/frahmantamala/tenant-auth/cmd"

func main() {
	cmd.Execute()
}
