// Package main DEVENIR Shop Assistant API Server
//
//	@title			DEVENIR Shop Assistant API
//	@version		1.0
//	@description	Retrieval-augmented chat assistant for the DEVENIR storefront
//
//	@host		localhost:8080
//	@BasePath	/
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
