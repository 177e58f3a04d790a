package main

import (
	"os"

	"github.com/DaviLago/MachineLearningRegressionModel/internal/cli"
)

func main() {
	os.Exit(int(cli.Run()))
}
