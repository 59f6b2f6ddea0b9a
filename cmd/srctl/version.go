package main

import (
	"fmt"

	"github.com/alecthomas/kong"
)

var _version = "dev"

// versionFlag implements the conventional Kong "print version and exit"
// flag: it runs during flag application, before any command's AfterApply.
type versionFlag bool

func (versionFlag) BeforeApply(app *kong.Kong) error {
	fmt.Fprintln(app.Stdout, "srctl", _version)
	app.Exit(0)
	return nil
}
