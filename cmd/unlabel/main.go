package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/vbonduro/unlabel/internal/cli"
)

var version = "dev"

func main() {
	app := cli.NewApp(os.Stdin, os.Stdout)
	root := cli.NewRootCmd(app)

	err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt),
	)
	app.Close()
	if err != nil {
		os.Exit(1)
	}
}
