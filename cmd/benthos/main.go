package main

import (
	"context"

	"github.com/benthosdev/benthos/v4/public/service"

	// Registers the flashloan_detect processor.
	_ "github.com/web3ekko/flashguard/internal/bento"
)

func main() {
	service.RunCLI(context.Background())
}
